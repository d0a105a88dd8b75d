// Package refs finds and replaces URL references inside text formats that
// are not parsed as a DOM: CSS (url() and @import) and srcset attribute
// values. The extractor and the rewriter share it so both agree on what
// counts as a reference.
package refs
