package secctx

import (
	"encoding/base64"
	"testing"
)

func TestLabel(t *testing.T) {
	krb5 := append([]byte{0x60, 0x82, 0x02, 0x00}, oidKRB5...)
	spnegoKrb5 := append(append([]byte{0x60, 0x48}, oidSPNEGO...), append([]byte{0xa0, 0x3e, 0x30, 0x3c, 0xa0, 0x30, 0x30, 0x2e}, oidKRB5...)...)
	spnegoNTLM := append(append([]byte{0x60, 0x48}, oidSPNEGO...), append([]byte{0xa0, 0x3e, 0x30, 0x3c, 0xa0, 0x0e, 0x30, 0x0c}, oidNTLM...)...)
	wrappedNTLM := append(append([]byte{0x60, 0x48}, oidSPNEGO...), []byte("....NTLMSSP\x00\x01\x00\x00\x00")...)

	tests := []struct {
		name  string
		token []byte
		want  string
	}{
		{"empty", nil, LabelUnknown},
		{"raw ntlm", []byte("NTLMSSP\x00\x01\x00\x00\x00"), LabelNTLM},
		{"raw krb5", krb5, LabelKerberos},
		{"spnego krb5", spnegoKrb5, LabelKerberos},
		{"spnego ntlm only", spnegoNTLM, LabelNTLM},
		{"spnego wrapped ntlmssp", wrappedNTLM, LabelNTLM},
		{"neg token resp", mustDecode("oRQwEqADCgEAoQsGCSqGSIb3EgECAg=="), LabelSPNEGO},
		{"unknown gss", []byte{0x60, 0x03, 0x01, 0x02, 0x03}, LabelUnknown},
		{"garbage", []byte("hello"), LabelUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Label(tt.token); got != tt.want {
				t.Errorf("Label(%s) = %q; want %q", base64.StdEncoding.EncodeToString(tt.token), got, tt.want)
			}
		})
	}
}
