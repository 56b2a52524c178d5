package layers

import "github.com/mellowdrifter/packetforge/pdu"

// Every layer binds its tags here so the framework can dispatch parses
// and, in reverse, stamp next-protocol fields during serialization.
func init() {
	// EtherType registry
	pdu.RegisterEtherType(pdu.EtherTypeIP, pdu.TypeIP, ParseIP)
	pdu.RegisterEtherType(pdu.EtherTypeIPv6, pdu.TypeIPv6, ParseIPv6)
	pdu.RegisterEtherType(pdu.EtherTypeARP, pdu.TypeARP, ParseARP)
	pdu.RegisterEtherType(pdu.EtherTypeDot1Q, pdu.TypeDot1Q, ParseDot1Q)
	pdu.RegisterEtherType(pdu.EtherTypeQinQ, pdu.TypeDot1Q, ParseDot1Q)
	pdu.RegisterEtherType(pdu.EtherTypeMPLS, pdu.TypeMPLS, ParseMPLS)
	pdu.RegisterEtherType(pdu.EtherTypePPPoED, pdu.TypePPPoE, ParsePPPoE)
	pdu.RegisterEtherType(pdu.EtherTypePPPoES, pdu.TypePPPoE, ParsePPPoE)
	pdu.RegisterEtherType(pdu.EtherTypeEAPOL, pdu.TypeRSNEAPOL, ParseEAPOL)

	// IP protocol registry
	pdu.RegisterIPProto(pdu.IPProtoICMP, pdu.TypeICMP, ParseICMP)
	pdu.RegisterIPProto(pdu.IPProtoTCP, pdu.TypeTCP, ParseTCP)
	pdu.RegisterIPProto(pdu.IPProtoUDP, pdu.TypeUDP, ParseUDP)
	pdu.RegisterIPProto(pdu.IPProtoICMPv6, pdu.TypeICMPv6, ParseICMPv6)
	pdu.RegisterIPProto(pdu.IPProtoIPv6, pdu.TypeIPv6, ParseIPv6)
	pdu.RegisterIPProto(pdu.IPProtoAH, pdu.TypeIPSecAH, ParseIPSecAH)
	pdu.RegisterIPProto(pdu.IPProtoESP, pdu.TypeIPSecESP, ParseIPSecESP)

	// data-link registry
	pdu.RegisterDLT(pdu.DLTEn10MB, ParseEthernetFrame)
	pdu.RegisterDLT(pdu.DLTIEEE802, ParseEthernetFrame)
	pdu.RegisterDLT(pdu.DLTLinuxSLL, ParseSLL)
	pdu.RegisterDLT(pdu.DLTNull, ParseLoopback)
	pdu.RegisterDLT(pdu.DLTLoop, ParseLoopback)
	pdu.RegisterDLT(pdu.DLTDot11, ParseDot11)
	pdu.RegisterDLT(pdu.DLTRadioTap, ParseRadioTap)
	pdu.RegisterDLT(pdu.DLTRaw, ParseIP)

	// both EAPOL variants serialize under the same EtherType
	pdu.RegisterEtherType(pdu.EtherTypeEAPOL, pdu.TypeRC4EAPOL, ParseEAPOL)
}
