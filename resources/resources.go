package resources

import "embed"

// FS holds static assets shipped with the binary: SQL migrations and
// translation files.
//
//go:embed migrations i18n
var FS embed.FS
