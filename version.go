package monica

// Version identifies this module's release for CLI display and output
// provenance.
const Version = "0.1.0"
