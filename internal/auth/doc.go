// Package auth provides API key authentication for the thermocert REST API.
//
// APIKey returns HTTP middleware that rejects requests whose key header does
// not match the configured key. When mode is not "apikey" or the key is empty
// it passes every request through, so a server without auth configured stays
// open.
package auth
