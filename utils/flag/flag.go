/*
flag Package set up cli flags shared across services

Usage:

	Flags listed in this package are shared across boundaries and service-agnostic
	For service dependent flags please define in their respective package, then
	call flag.Parse() in main.
*/

package flag

import (
	"flag"
)

const (
	APIServer = "api_server"
	FeedCtl   = "feedctl"
)

var (
	ServiceName string
	ByPassAuth  bool
)

func init() {
	flag.StringVar(&ServiceName, "service", APIServer, "'api_server' or 'feedctl'")
	flag.BoolVar(&ByPassAuth, "bypass_auth", false, "trust the X-User-Id header instead of validating jwt, development only")
}
