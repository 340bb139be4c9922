// Package fixtures provides shared test constants for the firebase-jwt
// test suite, so project ids and emails are not repeated as magic strings.
package fixtures

// Service account values.
const (
	// ProjectID is the Firebase project used across tests.
	ProjectID = "my-firebase-project"

	// ClientEmail is the service account that signs custom tokens.
	ClientEmail = "firebase-adminsdk-abc12@my-firebase-project.iam.gserviceaccount.com"
)

// Token subject values.
const (
	UID      = "some-uid"
	AltUID   = "other-uid"
	TenantID = "tenant-1234"
	KeyID    = "key-1"
	AltKeyID = "key-2"
)

// IDTokenIssuer is the issuer Firebase puts into ID tokens for ProjectID.
const IDTokenIssuer = "https://securetoken.google.com/" + ProjectID

// SessionCookieIssuer is the issuer Firebase puts into session cookies for
// ProjectID.
const SessionCookieIssuer = "https://session.firebase.google.com/" + ProjectID
