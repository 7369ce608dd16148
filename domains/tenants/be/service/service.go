// Package service implements the tenant registry: settings document handling,
// per-user client access administration, subscription status, and the metered
// usage counts reported to the billing provider.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/hourledger/hourledger/platform/go/auth"
	"github.com/hourledger/hourledger/platform/go/persistence"
	"github.com/hourledger/hourledger/platform/go/scope"
)

// Errors returned by the service layer.
var (
	ErrNotFound  = errors.New("tenant not found")
	ErrSlugTaken = errors.New("tenant slug already exists")
)

// ValidationError is returned when tenant inputs are malformed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid tenant input: " + e.Reason
}

const clientAccessKey = "clientAccess"

// settingsSchema constrains the parts of the settings document this service
// writes. Unknown top-level keys are allowed and preserved verbatim.
const settingsSchema = `{
  "type": "object",
  "properties": {
    "clientAccess": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": {"type": "string", "pattern": "^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$"}
      }
    }
  }
}`

// Settings is the parsed view of the tenant settings document.
type Settings struct {
	// ClientAccess maps a user id to the clients they may act on. A user
	// absent from the map is unrestricted; a present empty list restricts the
	// user to the internal firm-work client only.
	ClientAccess map[uuid.UUID][]uuid.UUID
}

// HasEntry reports whether the user has an explicit allow-list entry.
func (s Settings) HasEntry(userID uuid.UUID) bool {
	_, ok := s.ClientAccess[userID]
	return ok
}

// ParseSettings reads the raw settings document defensively: a malformed
// clientAccess fragment is treated as absent (default-open) and logged rather
// than failing the request.
func ParseSettings(raw json.RawMessage, logger *zap.Logger) Settings {
	out := Settings{ClientAccess: map[uuid.UUID][]uuid.UUID{}}
	if len(raw) == 0 {
		return out
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		if logger != nil {
			logger.Warn("malformed tenant settings document", zap.Error(err))
		}
		return out
	}

	accessRaw, ok := doc[clientAccessKey]
	if !ok {
		return out
	}

	var access map[string][]string
	if err := json.Unmarshal(accessRaw, &access); err != nil {
		if logger != nil {
			logger.Warn("malformed clientAccess fragment, treating as absent", zap.Error(err))
		}
		return out
	}

	for userKey, clientKeys := range access {
		userID, err := uuid.Parse(userKey)
		if err != nil {
			if logger != nil {
				logger.Warn("skipping clientAccess entry with invalid user id", zap.String("key", userKey))
			}
			continue
		}
		ids := make([]uuid.UUID, 0, len(clientKeys))
		for _, clientKey := range clientKeys {
			clientID, parseErr := uuid.Parse(clientKey)
			if parseErr != nil {
				if logger != nil {
					logger.Warn("skipping invalid client id in allow-list",
						zap.String("userId", userKey), zap.String("value", clientKey))
				}
				continue
			}
			ids = append(ids, clientID)
		}
		out.ClientAccess[userID] = ids
	}
	return out
}

// Tenant is the domain model for a registry entry.
type Tenant struct {
	ID                 uuid.UUID
	Slug               string
	DisplayName        string
	SubscriptionStatus persistence.SubscriptionStatus
	Settings           Settings
	RawSettings        json.RawMessage
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Usable reports whether the tenant's subscription permits API access.
func (t Tenant) Usable() bool {
	return t.SubscriptionStatus.Usable()
}

// CreateInput represents the request to register a tenant.
type CreateInput struct {
	Slug        string
	DisplayName string
}

// AccessEntry is a user's explicit allow-list, as returned by the admin API.
type AccessEntry struct {
	UserID    uuid.UUID
	ClientIDs []uuid.UUID
	Explicit  bool
}

// Repository abstracts persistence.
type Repository interface {
	Create(ctx context.Context, rec persistence.TenantRecord) (persistence.TenantRecord, error)
	Get(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error)
	GetBySlug(ctx context.Context, slug string) (persistence.TenantRecord, error)
	List(ctx context.Context) ([]persistence.TenantRecord, error)
	UpdateSettings(ctx context.Context, id uuid.UUID, settings json.RawMessage) error
	UpdateSubscriptionStatus(ctx context.Context, id uuid.UUID, status persistence.SubscriptionStatus) error
	CountUsage(ctx context.Context, id uuid.UUID) (persistence.UsageCounts, error)
}

// Service provides tenant registry operations.
type Service struct {
	repo   Repository
	logger *zap.Logger
	schema *jsonschema.Schema
}

// New constructs a Service with required dependencies.
func New(repo Repository, logger *zap.Logger) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	schema := jsonschema.MustCompileString("tenant-settings.json", settingsSchema)
	return &Service{repo: repo, logger: logger, schema: schema}
}

// Create registers a new tenant. New tenants start on a trial subscription
// with an empty settings document.
func (s *Service) Create(ctx context.Context, input CreateInput) (Tenant, error) {
	slug, err := persistence.NormalizeSlug(input.Slug)
	if err != nil {
		return Tenant{}, &ValidationError{Reason: err.Error()}
	}
	if input.DisplayName == "" {
		return Tenant{}, &ValidationError{Reason: "display name is required"}
	}

	rec, err := s.repo.Create(ctx, persistence.TenantRecord{
		TenantID:           uuid.New(),
		Slug:               slug,
		DisplayName:        input.DisplayName,
		SubscriptionStatus: persistence.SubscriptionTrialing,
		Settings:           json.RawMessage(`{}`),
	})
	if err != nil {
		if errors.Is(err, persistence.ErrUniqueViolation) {
			return Tenant{}, ErrSlugTaken
		}
		return Tenant{}, err
	}
	return s.toTenant(rec), nil
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tenant{}, mapNotFound(err)
	}
	return s.toTenant(rec), nil
}

// GetBySlug returns a tenant by its URL slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (Tenant, error) {
	rec, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return Tenant{}, mapNotFound(err)
	}
	return s.toTenant(rec), nil
}

// List returns all registered tenants. Admin tooling only.
func (s *Service) List(ctx context.Context) ([]Tenant, error) {
	recs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	tenants := make([]Tenant, 0, len(recs))
	for _, rec := range recs {
		tenants = append(tenants, s.toTenant(rec))
	}
	return tenants, nil
}

// Usage returns the metered quantities for the tenant.
func (s *Service) Usage(ctx context.Context, id uuid.UUID) (persistence.UsageCounts, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return persistence.UsageCounts{}, mapNotFound(err)
	}
	return s.repo.CountUsage(ctx, id)
}

// SetSubscriptionStatus records the billing provider's latest status.
func (s *Service) SetSubscriptionStatus(ctx context.Context, id uuid.UUID, status persistence.SubscriptionStatus) error {
	switch status {
	case persistence.SubscriptionActive, persistence.SubscriptionTrialing,
		persistence.SubscriptionPastDue, persistence.SubscriptionCanceled,
		persistence.SubscriptionInactive:
	default:
		return &ValidationError{Reason: fmt.Sprintf("unknown subscription status %q", status)}
	}
	if err := s.repo.UpdateSubscriptionStatus(ctx, id, status); err != nil {
		return mapNotFound(err)
	}
	return nil
}

// ResolveScope computes the client access scope for a user of the tenant.
func (s *Service) ResolveScope(ctx context.Context, tenantID, userID uuid.UUID, role auth.Role) (scope.Scope, error) {
	tenant, err := s.Get(ctx, tenantID)
	if err != nil {
		return scope.Scope{}, err
	}
	return scope.Resolve(tenant.Settings.ClientAccess, userID, role), nil
}

// AccessScope returns a user's explicit allow-list entry. Explicit is false
// when the user has no entry and therefore sees every client.
func (s *Service) AccessScope(ctx context.Context, tenantID, userID uuid.UUID) (AccessEntry, error) {
	tenant, err := s.Get(ctx, tenantID)
	if err != nil {
		return AccessEntry{}, err
	}
	ids, ok := tenant.Settings.ClientAccess[userID]
	return AccessEntry{UserID: userID, ClientIDs: ids, Explicit: ok}, nil
}

// SetAccessScope replaces a user's allow-list entry. The merge is
// non-destructive: other users' entries and unrelated settings keys are
// carried over untouched.
func (s *Service) SetAccessScope(ctx context.Context, tenantID, userID uuid.UUID, clientIDs []uuid.UUID) error {
	entry := make([]string, 0, len(clientIDs))
	for _, id := range clientIDs {
		entry = append(entry, id.String())
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal allow-list: %w", err)
	}
	return s.mergeAccessEntry(ctx, tenantID, userID, raw)
}

// ClearAccessScope removes a user's allow-list entry, returning them to the
// default-open scope.
func (s *Service) ClearAccessScope(ctx context.Context, tenantID, userID uuid.UUID) error {
	return s.mergeAccessEntry(ctx, tenantID, userID, nil)
}

// mergeAccessEntry rewrites only the targeted user's slot in the clientAccess
// map. All other fragments stay as raw bytes so unknown keys and other users'
// entries survive byte-for-byte. entry nil removes the slot.
func (s *Service) mergeAccessEntry(ctx context.Context, tenantID, userID uuid.UUID, entry json.RawMessage) error {
	rec, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return mapNotFound(err)
	}

	doc := map[string]json.RawMessage{}
	if len(rec.Settings) > 0 {
		if unmarshalErr := json.Unmarshal(rec.Settings, &doc); unmarshalErr != nil {
			s.logger.Warn("replacing malformed tenant settings document",
				zap.String("tenantId", tenantID.String()), zap.Error(unmarshalErr))
			doc = map[string]json.RawMessage{}
		}
	}

	access := map[string]json.RawMessage{}
	if accessRaw, ok := doc[clientAccessKey]; ok {
		if unmarshalErr := json.Unmarshal(accessRaw, &access); unmarshalErr != nil {
			s.logger.Warn("replacing malformed clientAccess fragment",
				zap.String("tenantId", tenantID.String()), zap.Error(unmarshalErr))
			access = map[string]json.RawMessage{}
		}
	}

	if entry == nil {
		delete(access, userID.String())
	} else {
		access[userID.String()] = entry
	}

	accessRaw, err := json.Marshal(access)
	if err != nil {
		return fmt.Errorf("marshal clientAccess: %w", err)
	}
	doc[clientAccessKey] = accessRaw

	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = s.validateSettings(merged); err != nil {
		return err
	}

	if err = s.repo.UpdateSettings(ctx, tenantID, merged); err != nil {
		return mapNotFound(err)
	}
	return nil
}

func (s *Service) validateSettings(raw json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &ValidationError{Reason: "settings document is not valid JSON"}
	}
	if err := s.schema.Validate(doc); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	return nil
}

func (s *Service) toTenant(rec persistence.TenantRecord) Tenant {
	return Tenant{
		ID:                 rec.TenantID,
		Slug:               rec.Slug,
		DisplayName:        rec.DisplayName,
		SubscriptionStatus: rec.SubscriptionStatus,
		Settings:           ParseSettings(rec.Settings, s.logger),
		RawSettings:        rec.Settings,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
