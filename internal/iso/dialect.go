package iso

// Dialect1987ASCII builds the stock ISO 8583-1:1987 table with ASCII text
// fields, ASCII digit length prefixes, and a hex-text bitmap. Interchange
// dialects that deviate should load their own description instead of
// patching this one.
func Dialect1987ASCII() *Packager {
	p := NewPackager(PackagerConfig{
		Name:     "iso87ascii",
		MTI:      NewNumeric(4, Fixed),
		Bitmap:   BitmapHex,
		Extended: true,
	})

	type def struct {
		id    int
		name  string
		codec FieldCodec
	}
	defs := []def{
		{2, "pan", NewNumeric(19, LL)},
		{3, "processing code", NewNumeric(6, Fixed)},
		{4, "amount, transaction", NewNumeric(12, Fixed)},
		{5, "amount, settlement", NewNumeric(12, Fixed)},
		{6, "amount, cardholder billing", NewNumeric(12, Fixed)},
		{7, "transmission date and time", NewNumeric(10, Fixed)},
		{8, "amount, cardholder billing fee", NewNumeric(8, Fixed)},
		{9, "conversion rate, settlement", NewNumeric(8, Fixed)},
		{10, "conversion rate, cardholder billing", NewNumeric(8, Fixed)},
		{11, "system trace audit number", NewNumeric(6, Fixed)},
		{12, "time, local transaction", NewNumeric(6, Fixed)},
		{13, "date, local transaction", NewNumeric(4, Fixed)},
		{14, "date, expiration", NewNumeric(4, Fixed)},
		{15, "date, settlement", NewNumeric(4, Fixed)},
		{16, "date, conversion", NewNumeric(4, Fixed)},
		{17, "date, capture", NewNumeric(4, Fixed)},
		{18, "merchant type", NewNumeric(4, Fixed)},
		{19, "acquiring institution country code", NewNumeric(3, Fixed)},
		{20, "pan extended country code", NewNumeric(3, Fixed)},
		{21, "forwarding institution country code", NewNumeric(3, Fixed)},
		{22, "point of service entry mode", NewNumeric(3, Fixed)},
		{23, "application pan sequence number", NewNumeric(3, Fixed)},
		{24, "network international identifier", NewNumeric(3, Fixed)},
		{25, "point of service condition code", NewNumeric(2, Fixed)},
		{26, "point of service capture code", NewNumeric(2, Fixed)},
		{27, "authorizing id response length", NewNumeric(1, Fixed)},
		{28, "amount, transaction fee", NewASCII(9, Fixed)},
		{29, "amount, settlement fee", NewASCII(9, Fixed)},
		{30, "amount, transaction processing fee", NewASCII(9, Fixed)},
		{31, "amount, settlement processing fee", NewASCII(9, Fixed)},
		{32, "acquiring institution id code", NewNumeric(11, LL)},
		{33, "forwarding institution id code", NewNumeric(11, LL)},
		{34, "pan, extended", NewASCII(28, LL)},
		{35, "track 2 data", NewASCII(37, LL)},
		{36, "track 3 data", NewNumeric(104, LLL)},
		{37, "retrieval reference number", NewASCII(12, Fixed)},
		{38, "authorization id response", NewASCII(6, Fixed)},
		{39, "response code", NewASCII(2, Fixed)},
		{40, "service restriction code", NewASCII(3, Fixed)},
		{41, "card acceptor terminal id", NewASCII(8, Fixed)},
		{42, "card acceptor id code", NewASCII(15, Fixed)},
		{43, "card acceptor name and location", NewASCII(40, Fixed)},
		{44, "additional response data", NewASCII(25, LL)},
		{45, "track 1 data", NewASCII(76, LL)},
		{46, "additional data, iso", NewASCII(999, LLL)},
		{47, "additional data, national", NewASCII(999, LLL)},
		{48, "additional data, private", NewASCII(999, LLL)},
		{49, "currency code, transaction", NewASCII(3, Fixed)},
		{50, "currency code, settlement", NewASCII(3, Fixed)},
		{51, "currency code, cardholder billing", NewASCII(3, Fixed)},
		{52, "pin data", NewBinary(8, Fixed)},
		{53, "security related control information", NewNumeric(16, Fixed)},
		{54, "additional amounts", NewASCII(120, LLL)},
		{55, "icc data", NewBinary(999, LLL)},
		{56, "reserved iso", NewASCII(999, LLL)},
		{57, "reserved national", NewASCII(999, LLL)},
		{58, "reserved national", NewASCII(999, LLL)},
		{59, "reserved private", NewASCII(999, LLL)},
		{60, "reserved private", NewASCII(999, LLL)},
		{61, "reserved private", NewASCII(999, LLL)},
		{62, "reserved private", NewASCII(999, LLL)},
		{63, "reserved private", NewASCII(999, LLL)},
		{64, "message authentication code", NewBinary(8, Fixed)},
		{66, "settlement code", NewNumeric(1, Fixed)},
		{67, "extended payment code", NewNumeric(2, Fixed)},
		{68, "receiving institution country code", NewNumeric(3, Fixed)},
		{69, "settlement institution country code", NewNumeric(3, Fixed)},
		{70, "network management information code", NewNumeric(3, Fixed)},
		{71, "message number", NewNumeric(4, Fixed)},
		{72, "message number, last", NewNumeric(4, Fixed)},
		{73, "date, action", NewNumeric(6, Fixed)},
		{74, "credits, number", NewNumeric(10, Fixed)},
		{75, "credits, reversal number", NewNumeric(10, Fixed)},
		{76, "debits, number", NewNumeric(10, Fixed)},
		{77, "debits, reversal number", NewNumeric(10, Fixed)},
		{78, "transfer number", NewNumeric(10, Fixed)},
		{79, "transfer, reversal number", NewNumeric(10, Fixed)},
		{80, "inquiries number", NewNumeric(10, Fixed)},
		{81, "authorizations, number", NewNumeric(10, Fixed)},
		{82, "credits, processing fee amount", NewNumeric(12, Fixed)},
		{83, "credits, transaction fee amount", NewNumeric(12, Fixed)},
		{84, "debits, processing fee amount", NewNumeric(12, Fixed)},
		{85, "debits, transaction fee amount", NewNumeric(12, Fixed)},
		{86, "credits, amount", NewNumeric(16, Fixed)},
		{87, "credits, reversal amount", NewNumeric(16, Fixed)},
		{88, "debits, amount", NewNumeric(16, Fixed)},
		{89, "debits, reversal amount", NewNumeric(16, Fixed)},
		{90, "original data elements", NewNumeric(42, Fixed)},
		{91, "file update code", NewASCII(1, Fixed)},
		{92, "file security code", NewASCII(2, Fixed)},
		{93, "response indicator", NewASCII(5, Fixed)},
		{94, "service indicator", NewASCII(7, Fixed)},
		{95, "replacement amounts", NewASCII(42, Fixed)},
		{96, "message security code", NewBinary(8, Fixed)},
		{97, "amount, net settlement", NewNumeric(16, Fixed)},
		{98, "payee", NewASCII(25, Fixed)},
		{99, "settlement institution id code", NewNumeric(11, LL)},
		{100, "receiving institution id code", NewNumeric(11, LL)},
		{101, "file name", NewASCII(17, LL)},
		{102, "account identification 1", NewASCII(28, LL)},
		{103, "account identification 2", NewASCII(28, LL)},
		{104, "transaction description", NewASCII(100, LLL)},
	}
	for id := 105; id <= 119; id++ {
		defs = append(defs, def{id, "reserved iso", NewASCII(999, LLL)})
	}
	for id := 120; id <= 127; id++ {
		defs = append(defs, def{id, "reserved private", NewASCII(999, LLL)})
	}
	defs = append(defs, def{128, "message authentication code", NewBinary(8, Fixed)})

	for _, d := range defs {
		if err := p.Register(d.id, d.name, d.codec); err != nil {
			panic(err)
		}
	}
	return p
}
