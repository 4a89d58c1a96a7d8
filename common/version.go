package common

// PackageName is used as the metrics namespace and the default service tag.
const PackageName = "docbind_trust_core"

// Version is set at build time via -ldflags.
var Version = "dev"
