package protocol

// DefaultSchemes is the scheme allow-list used when none is configured.
// It is a subset of the IANA URI scheme registry restricted to schemes that
// name a reachable network service, plus the defanged hxxp/hxxps forms that
// show up in threat-intelligence text.
var DefaultSchemes = []string{
	"afp",
	"amqp",
	"amqps",
	"awb",
	"cassandra",
	"coap",
	"coaps",
	"dav",
	"dict",
	"dns",
	"elasticsearch",
	"fish",
	"ftp",
	"ftps",
	"git",
	"gopher",
	"hxxp",
	"hxxps",
	"imap",
	"imaps",
	"ipp",
	"ipps",
	"irc",
	"ircs",
	"jdbc",
	"kafka",
	"ldap",
	"ldaps",
	"memcached",
	"mms",
	"mongodb",
	"mqtt",
	"mqtts",
	"msrp",
	"mssql",
	"mysql",
	"nfs",
	"nntp",
	"pop",
	"pop3",
	"pop3s",
	"postgres",
	"postgresql",
	"rdp",
	"redis",
	"rediss",
	"rmi",
	"rsync",
	"rtmp",
	"rtsp",
	"s3",
	"sftp",
	"sip",
	"sips",
	"smb",
	"smtp",
	"smtps",
	"snmp",
	"ssh",
	"svn",
	"telnet",
	"tftp",
	"vnc",
	"ws",
	"wss",
	"xmpp",
	"zmq",
}
