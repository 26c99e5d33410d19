package metadata

// Well-known metadata keys.
const (
	KeyDeviceID       = "device_id"
	KeyDeviceSecret   = "device_secret"
	KeyLastSyncAt     = "last_sync_at"
	KeyCredentialSalt = "credential_salt"
	KeyCredentialBlob = "credential_blob"
	KeyCredentialNonce = "credential_nonce"
)
