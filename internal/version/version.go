// ABOUTME: Version and device identity constants
// ABOUTME: Reported by the CLI's --version flag and startup log
package version

// Version is the player's software version, printed by
// `sendspin-player --version` and logged at startup. It is not sent in
// the hello handshake.
const Version = "0.1.0"

// Product is this client's product name.
const Product = "Sendspin Player"

// Manufacturer identifies the maker of this client.
const Manufacturer = "Sendspin"
