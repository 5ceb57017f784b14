package version

// Version is the current release version of the harvester
const Version = "1.2.0"
