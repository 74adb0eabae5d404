package util

// Version is the Starbridge release version.
const Version = "1.0.0"
