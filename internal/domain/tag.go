package domain

// Tag identifies the payload kind of a single VSL record. Values match the
// numbering used by the Varnish v4/v5 shared memory log.
type Tag uint8

const (
	TagBogus          Tag = 0
	TagDebug          Tag = 1
	TagError          Tag = 2
	TagCLI            Tag = 3
	TagSessOpen       Tag = 4
	TagSessClose      Tag = 5
	TagBackendOpen    Tag = 6
	TagBackendReuse   Tag = 7
	TagBackendClose   Tag = 8
	TagHttpGarbage    Tag = 9
	TagProxy          Tag = 10
	TagProxyGarbage   Tag = 11
	TagBackend        Tag = 12
	TagLength         Tag = 13
	TagFetchError     Tag = 14
	TagReqMethod      Tag = 15
	TagReqURL         Tag = 16
	TagReqProtocol    Tag = 17
	TagReqStatus      Tag = 18
	TagReqReason      Tag = 19
	TagReqHeader      Tag = 20
	TagReqUnset       Tag = 21
	TagReqLost        Tag = 22
	TagRespMethod     Tag = 23
	TagRespURL        Tag = 24
	TagRespProtocol   Tag = 25
	TagRespStatus     Tag = 26
	TagRespReason     Tag = 27
	TagRespHeader     Tag = 28
	TagRespUnset      Tag = 29
	TagRespLost       Tag = 30
	TagBereqMethod    Tag = 31
	TagBereqURL       Tag = 32
	TagBereqProtocol  Tag = 33
	TagBereqStatus    Tag = 34
	TagBereqReason    Tag = 35
	TagBereqHeader    Tag = 36
	TagBereqUnset     Tag = 37
	TagBereqLost      Tag = 38
	TagBerespMethod   Tag = 39
	TagBerespURL      Tag = 40
	TagBerespProtocol Tag = 41
	TagBerespStatus   Tag = 42
	TagBerespReason   Tag = 43
	TagBerespHeader   Tag = 44
	TagBerespUnset    Tag = 45
	TagBerespLost     Tag = 46
	TagObjMethod      Tag = 47
	TagObjURL         Tag = 48
	TagObjProtocol    Tag = 49
	TagObjStatus      Tag = 50
	TagObjReason      Tag = 51
	TagObjHeader      Tag = 52
	TagObjUnset       Tag = 53
	TagObjLost        Tag = 54
	TagBogoHeader     Tag = 55
	TagLostHeader     Tag = 56
	TagTTL            Tag = 57
	TagFetchBody      Tag = 58
	TagVCLAcl         Tag = 59
	TagVCLCall        Tag = 60
	TagVCLTrace       Tag = 61
	TagVCLReturn      Tag = 62
	TagReqStart       Tag = 63
	TagHit            Tag = 64
	TagHitPass        Tag = 65
	TagExpBan         Tag = 66
	TagExpKill        Tag = 67
	TagWorkThread     Tag = 68
	TagESIXmlError    Tag = 69
	TagHash           Tag = 70
	TagBackendHealth  Tag = 71
	TagVCLLog         Tag = 72
	TagVCLError       Tag = 73
	TagGzip           Tag = 74
	TagLink           Tag = 75
	TagBegin          Tag = 76
	TagEnd            Tag = 77
	TagVSL            Tag = 78
	TagStorage        Tag = 79
	TagTimestamp      Tag = 80
	TagReqAcct        Tag = 81
	TagPipeAcct       Tag = 82
	TagBereqAcct      Tag = 83
	TagVfpAcct        Tag = 84
	TagWitness        Tag = 85
	TagBackendStart   Tag = 86
	TagHitMiss        Tag = 87
	TagReserved       Tag = 254
	TagBatch          Tag = 255
)

var tagNames = map[Tag]string{
	TagBogus:          "Bogus",
	TagDebug:          "Debug",
	TagError:          "Error",
	TagCLI:            "CLI",
	TagSessOpen:       "SessOpen",
	TagSessClose:      "SessClose",
	TagBackendOpen:    "BackendOpen",
	TagBackendReuse:   "BackendReuse",
	TagBackendClose:   "BackendClose",
	TagHttpGarbage:    "HttpGarbage",
	TagProxy:          "Proxy",
	TagProxyGarbage:   "ProxyGarbage",
	TagBackend:        "Backend",
	TagLength:         "Length",
	TagFetchError:     "FetchError",
	TagReqMethod:      "ReqMethod",
	TagReqURL:         "ReqURL",
	TagReqProtocol:    "ReqProtocol",
	TagReqStatus:      "ReqStatus",
	TagReqReason:      "ReqReason",
	TagReqHeader:      "ReqHeader",
	TagReqUnset:       "ReqUnset",
	TagReqLost:        "ReqLost",
	TagRespMethod:     "RespMethod",
	TagRespURL:        "RespURL",
	TagRespProtocol:   "RespProtocol",
	TagRespStatus:     "RespStatus",
	TagRespReason:     "RespReason",
	TagRespHeader:     "RespHeader",
	TagRespUnset:      "RespUnset",
	TagRespLost:       "RespLost",
	TagBereqMethod:    "BereqMethod",
	TagBereqURL:       "BereqURL",
	TagBereqProtocol:  "BereqProtocol",
	TagBereqStatus:    "BereqStatus",
	TagBereqReason:    "BereqReason",
	TagBereqHeader:    "BereqHeader",
	TagBereqUnset:     "BereqUnset",
	TagBereqLost:      "BereqLost",
	TagBerespMethod:   "BerespMethod",
	TagBerespURL:      "BerespURL",
	TagBerespProtocol: "BerespProtocol",
	TagBerespStatus:   "BerespStatus",
	TagBerespReason:   "BerespReason",
	TagBerespHeader:   "BerespHeader",
	TagBerespUnset:    "BerespUnset",
	TagBerespLost:     "BerespLost",
	TagObjMethod:      "ObjMethod",
	TagObjURL:         "ObjURL",
	TagObjProtocol:    "ObjProtocol",
	TagObjStatus:      "ObjStatus",
	TagObjReason:      "ObjReason",
	TagObjHeader:      "ObjHeader",
	TagObjUnset:       "ObjUnset",
	TagObjLost:        "ObjLost",
	TagBogoHeader:     "BogoHeader",
	TagLostHeader:     "LostHeader",
	TagTTL:            "TTL",
	TagFetchBody:      "Fetch_Body",
	TagVCLAcl:         "VCL_acl",
	TagVCLCall:        "VCL_call",
	TagVCLTrace:       "VCL_trace",
	TagVCLReturn:      "VCL_return",
	TagReqStart:       "ReqStart",
	TagHit:            "Hit",
	TagHitPass:        "HitPass",
	TagExpBan:         "ExpBan",
	TagExpKill:        "ExpKill",
	TagWorkThread:     "WorkThread",
	TagESIXmlError:    "ESI_xmlerror",
	TagHash:           "Hash",
	TagBackendHealth:  "Backend_health",
	TagVCLLog:         "VCL_Log",
	TagVCLError:       "VCL_Error",
	TagGzip:           "Gzip",
	TagLink:           "Link",
	TagBegin:          "Begin",
	TagEnd:            "End",
	TagVSL:            "VSL",
	TagStorage:        "Storage",
	TagTimestamp:      "Timestamp",
	TagReqAcct:        "ReqAcct",
	TagPipeAcct:       "PipeAcct",
	TagBereqAcct:      "BereqAcct",
	TagVfpAcct:        "VfpAcct",
	TagWitness:        "Witness",
	TagBackendStart:   "BackendStart",
	TagHitMiss:        "HitMiss",
	TagReserved:       "Reserved",
	TagBatch:          "Batch",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return "Unknown"
}
