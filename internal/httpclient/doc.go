// Package httpclient builds the HTTP client shared by the robots loader,
// the plain HTTP renderer and the asset downloader, and decodes response
// bodies (gzip, deflate, brotli, declared charsets).
package httpclient
