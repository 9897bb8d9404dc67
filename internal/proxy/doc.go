// Package proxy parses egress proxy descriptors and rotates through them.
//
// Descriptors are written as scheme://[user[:pass]@]host:port where scheme
// is http, https or socks5. A pool may be given inline through the PROXIES
// environment variable (comma separated) or as a file with one descriptor
// per line, named by PROXIES_FILE. Malformed lines are skipped with a
// warning. An empty pool is valid and means direct connections.
package proxy
