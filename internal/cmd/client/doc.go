// Package client provides the `oddbot` command-line client.
//
// The CLI talks to the oddbot HTTP API and WebSocket gateway to administer
// the event stream and to publish or watch squeaks from a terminal.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. The standalone binary reads ODDBOT_HTTP and
// defaults to http://localhost:3000. Stream commands default --name to
// EVENT_STREAM_NAME; --stream-name is accepted as an alias.
//
// Usage
//
//	oddbot stream create --name oblivion --subjects 'oddlaws.events.>' --description "squeaks"
//	oddbot stream info --name oblivion
//	oddbot stream list
//
//	# Drain every message through a throwaway consumer (prompts unless --force)
//	oddbot stream clear --name oblivion --batch-size 100
//	oddbot stream delete --name oblivion --force
//
//	oddbot squeak publish --author skeever --content "hello tamriel"
//	oddbot squeak list --limit 10
//	oddbot squeak tail --filter 'author == "skeever"' --replay=false
package client
