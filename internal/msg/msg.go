package msg

// release compilation
const (
	// ArchiveExists is shown when the target archive is already present and there is nothing to do.
	ArchiveExists = "Release archive %s already exists"
	// ReleaseBuilt reports the finished archive and its size.
	ReleaseBuilt = "Built %s (%d bytes)"
)

// manifest loading
const (
	// MissingManifest is shown when no release manifest was specified.
	MissingManifest = "no release manifest specified"
	// InvalidManifest prefixes schema validation failures of a release manifest.
	InvalidManifest = "invalid release manifest"
)

// blobstore access
const (
	// BlobNotFound indicates the remote store has no object under the requested id.
	BlobNotFound = "blob not found"
	// BlobAccessDenied indicates the remote store rejected the credentials.
	BlobAccessDenied = "access to the blobstore denied"
)
