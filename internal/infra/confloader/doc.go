// Package confloader loads configuration with koanf and watches the
// configuration file for changes.
//
// Sources, later overriding earlier:
//
//  1. Values already set in the target struct (defaults)
//  2. YAML configuration file
//  3. Maps (flags, tests)
//  4. Environment variables, ZONEMESH_SECTION__KEY
//
// A double underscore separates nesting levels so that keys may contain
// single underscores: ZONEMESH_PEER__SHARED_SECRET sets peer.shared_secret.
package confloader
