// Command seadaemon runs the app process supervisor daemon and talks to a
// running one.
//
//	seadaemon serve
//	seadaemon install tool --file tool.zip
//	seadaemon run tool -- --version
//	seadaemon status
//	seadaemon stop 4242
//	seadaemon option set nc_url https://cloud.example.com
//
// The daemon is configured from SEADAEMON_* environment variables (and an
// optional .env file); its HTTP address and credentials come from the
// daemon config file it creates on first start.
package main
