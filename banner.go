package tarpit

import "bytes"

// DefaultBanner is the text trickled to connections when Config.Banner is
// empty: a verse that, by its own last line, starts itself over, which is
// exactly what the cyclic fragment offset does with it. Lines are CRLF
// terminated.
const DefaultBanner = "My name is Yon Yonson\r\n" +
	"I live in Wisconsin.\r\n" +
	"There, the people I meet\r\n" +
	"As I walk down the street\r\n" +
	"Say \"Hey, what's your name?\"\r\n" +
	"And I say:\r\n"

// fragment returns the next chunk of banner for a connection that has
// been sent n bytes so far. The chunk runs from the cyclic offset through
// the next newline, or to the banner's end when no newline remains, so no
// single write attempt exceeds one line and partial writes resume
// mid-line on the following rotation.
func fragment(banner []byte, n uint64) []byte {
	off := int(n % uint64(len(banner)))
	if i := bytes.IndexByte(banner[off:], '\n'); i >= 0 {
		return banner[off : off+i+1]
	}
	return banner[off:]
}
