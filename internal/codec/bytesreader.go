package codec

import "bytes"

// byteReader adapts a byte slice to io.Reader for decoders that already
// have a fully-read payload in memory (record payloads are read in one
// shot by the framing layer before being handed to the form's ReadData).
func byteReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }
