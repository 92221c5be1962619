package at

const (
	// Terminal control
	CR     = "\r"
	CRLF   = "\r\n"
	Escape = "+++"

	// Final result codes
	OK         = "OK"
	ERROR      = "ERROR"
	Connect    = "CONNECT"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// Probe / session commands
	CmdAt     = "AT"
	CmdResume = "ATO"
	CmdDial   = "ATD*99#"

	// Setup commands, in the order the bring-up batch issues them
	CmdEchoOff       = "ATE0"
	CmdHangup        = "ATH"
	CmdNumericErrors = "AT+CMEE=1"
	CmdAnswerInd     = "AT+COLP=1"
	CmdCallerID      = "AT+CLIP=1"
	CmdDTMFDetect    = "AT+QTONEDET=1"
	CmdURCPort       = `AT+QURCCFG="urcport","uart1"`
	CmdNetworkInfo   = "AT+QSPN"
	CmdManufacturer  = "AT+CGMI"
	CmdModel         = "AT+CGMM"
	CmdRevision      = "AT+CGMR"
	CmdIMEI          = "AT+CGSN"
	CmdNoRegNotices  = "AT+CREG=0"
	CmdAttachQuery   = "AT+CGATT?"

	// Operator registration
	CmdOperatorAuto = "AT+COPS=0,0"

	// Response prefixes handled by capture matchers
	AttachedPrefix = "+CGATT:"

	// URCs the driver only logs
	UrcRing         = "RING"
	UrcRegistration = "+CREG:"
	UrcSignal       = "+CSQ:"
)

type ResponseType int

const (
	TypeFinal ResponseType = iota // OK, ERROR, CONNECT and friends
	TypeURC                       // asynchronous notifications
	TypeData                      // intermediate command output
)
