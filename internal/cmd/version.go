package cmd

var version = "dev" // Set at build time using -ldflags

// AppName is the name of the binary.
func AppName() string {
	return "healthd"
}

// Version is the build version of healthd.
func Version() string {
	return version
}
