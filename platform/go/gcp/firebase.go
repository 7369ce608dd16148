// Package gcp wires Google Cloud clients used by the API.
package gcp

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// InitFirebaseAuth initializes the Firebase App and returns an Auth client.
// credentialsPath is optional; when nil the default application credentials
// chain applies (GOOGLE_APPLICATION_CREDENTIALS, metadata server, ...).
func InitFirebaseAuth(ctx context.Context, credentialsPath *string) (*firebase.App, *firebaseauth.Client, error) {
	var app *firebase.App
	var err error

	if credentialsPath != nil {
		app, err = firebase.NewApp(ctx, nil, option.WithCredentialsFile(*credentialsPath))
	} else {
		app, err = firebase.NewApp(ctx, nil)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("init firebase app: %w", err)
	}

	fbAuth, err := app.Auth(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("init firebase auth: %w", err)
	}

	return app, fbAuth, nil
}
