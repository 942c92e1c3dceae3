package p1

import "strings"

// Test telegrams, written with plain newlines for readability and converted
// to the CRLF line endings the checksum covers. The ESMR 5.0 and KAIFA
// samples are real captures with valid checksums.

const sampleESMR5 = `/Ene5\XS210 ESMR 5.0

1-3:0.2.8(50)
0-0:1.0.0(171105201324W)
0-0:96.1.1(4530303437303030303037363330383137)
1-0:1.8.1(000051.775*kWh)
1-0:1.8.2(000000.000*kWh)
1-0:2.8.1(000024.413*kWh)
1-0:2.8.2(000000.000*kWh)
0-0:96.14.0(0001)
1-0:1.7.0(00.335*kW)
1-0:2.7.0(00.000*kW)
0-0:96.7.21(00003)
0-0:96.7.9(00001)
1-0:99.97.0(0)(0-0:96.7.19)
1-0:32.32.0(00002)
1-0:32.36.0(00000)
0-0:96.13.0()
1-0:32.7.0(229.0*V)
1-0:31.7.0(001*A)
1-0:21.7.0(00.335*kW)
1-0:22.7.0(00.000*kW)
0-1:24.1.0(003)
0-1:96.1.0(4730303538353330303031313633323137)
0-1:24.2.1(171105201000W)(00016.713*m3)
!8F46
`

const sampleKAIFA = `/KFM5KAIFA-METER

1-3:0.2.8(42)
0-0:1.0.0(170124213128W)
0-0:96.1.1(4530303236303030303234343934333135)
1-0:1.8.1(000306.946*kWh)
1-0:1.8.2(000210.088*kWh)
1-0:2.8.1(000000.000*kWh)
1-0:2.8.2(000000.000*kWh)
0-0:96.14.0(0001)
1-0:1.7.0(02.793*kW)
1-0:2.7.0(00.000*kW)
0-0:96.7.21(00001)
0-0:96.7.9(00001)
1-0:99.97.0(1)(0-0:96.7.19)(000101000006W)(2147483647*s)
1-0:32.32.0(00000)
1-0:52.32.0(00000)
1-0:72.32.0(00000)
1-0:32.36.0(00000)
1-0:52.36.0(00000)
1-0:72.36.0(00000)
0-0:96.13.1()
0-0:96.13.0()
1-0:31.7.0(003*A)
1-0:51.7.0(005*A)
1-0:71.7.0(005*A)
1-0:21.7.0(00.503*kW)
1-0:41.7.0(01.100*kW)
1-0:61.7.0(01.190*kW)
1-0:22.7.0(00.000*kW)
1-0:42.7.0(00.000*kW)
1-0:62.7.0(00.000*kW)
0-1:24.1.0(003)
0-1:96.1.0(4730303331303033333738373931363136)
0-1:24.2.1(170124210000W)(00671.790*m3)
!29ED
`

// A short but checksum-valid telegram, for exercising length changes.
const sampleShort = `/Ene5\XS210 ESMR 5.0

1-3:0.2.8(50)
0-0:1.0.0(171105201324W)
0-0:96.1.1(4530303437303030303037363330383137)
1-0:1.8.1(000051.775*kWh)
!A86F
`

// crlf converts a readable sample into its on-the-wire byte form.
func crlf(sample string) []byte {
	return []byte(strings.ReplaceAll(sample, "\n", "\r\n"))
}
