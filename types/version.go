package types

// Version is the canonical project version.
// The CLI, the run manifest schema and the naming rules share this version
// per the lockstep versioning policy.
const Version = "0.4.0"

// ManifestVersion is the schema version written into every run manifest record.
// Must always equal Version.
const ManifestVersion = Version
