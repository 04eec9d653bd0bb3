/*
Package store persists the daemon's durable state: global options and the
per-app override map, kept together in one JSON file.

	{
	    "apps":    {"tool": {"APP_MODE": "prod"}},
	    "options": {"host": "127.0.0.1", "port": 8063, "log_level": "WARN", "xauth": "nextcloud:"}
	}

Open writes default options when the file is absent, refuses to start when
a required option is missing, then registers every directory under the
apps dir that the file does not know yet. Every setter saves the whole file
before returning. Accessors hand out copies.
*/
package store
