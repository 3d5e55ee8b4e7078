// ABOUTME: mDNS service discovery package
// ABOUTME: Discovers Sendspin servers on the local network
package discovery
