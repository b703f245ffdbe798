package iotstate

import "embed"

// templatesFS contains the shipped response templates. Embedding keeps
// the binary self-contained; templates are parsed once during skill
// preparations.
//
//go:embed templates/*.tmpl
var templatesFS embed.FS
