package root

import (
	authcmd "github.com/hourledger/hourledger/apps/cli/cmd/auth"
	migratecmd "github.com/hourledger/hourledger/apps/cli/cmd/migrate"
	periodcmd "github.com/hourledger/hourledger/apps/cli/cmd/period"
	tenantcmd "github.com/hourledger/hourledger/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(authcmd.Command())
	Root().AddCommand(migratecmd.Command())
	Root().AddCommand(tenantcmd.Command())
	Root().AddCommand(periodcmd.Command())
}
