package version

// Version is the current release of atlaspdf.
const Version = "0.4.0"
