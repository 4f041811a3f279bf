package version

// Current is the datadash release version.
const Current = "0.1.0"
