// Package cmd provides the docserve command-line interface.
//
// The root command serves a documentation project: it runs an initial
// build, watches the sources, rebuilds on change and reloads every
// connected browser.
//
//	docserve                      # serve the current directory on :8000
//	docserve --port 9000 ./docs   # serve ./docs on :9000
//	docserve --clean ./docs       # wipe the build output first
//	docserve config ./docs        # print the effective configuration
//	docserve version --format json
//
// Configuration is resolved from flags, DOCSERVE_* environment variables
// and <project>/docserve.yaml, in that order of precedence.
//
// Exit status is 0 after a clean shutdown, 2 when the listen address
// cannot be bound and 1 for any other failure.
package cmd
