package ports

// WellKnownService returns a heuristic service name for common ports.
func WellKnownService(port int) string {
	switch port {
	case 20, 21:
		return "ftp"
	case 22, 2222:
		return "ssh"
	case 23:
		return "telnet"
	case 25, 465, 587:
		return "smtp"
	case 53:
		return "dns"
	case 67, 68:
		return "dhcp"
	case 69:
		return "tftp"
	case 80, 8000, 8080, 8888:
		return "http"
	case 88:
		return "kerberos"
	case 110, 995:
		return "pop3"
	case 119:
		return "nntp"
	case 123:
		return "ntp"
	case 135:
		return "msrpc"
	case 139, 445:
		return "smb"
	case 143, 993:
		return "imap"
	case 161:
		return "snmp"
	case 179:
		return "bgp"
	case 389:
		return "ldap"
	case 443, 8443, 9443:
		return "https"
	case 636:
		return "ldaps"
	case 1080:
		return "socks"
	case 1433:
		return "mssql"
	case 1521:
		return "oracle"
	case 1883:
		return "mqtt"
	case 2049:
		return "nfs"
	case 3306:
		return "mysql"
	case 3389:
		return "rdp"
	case 5432:
		return "postgresql"
	case 5900:
		return "vnc"
	case 5985:
		return "winrm"
	case 6379:
		return "redis"
	case 9200:
		return "elasticsearch"
	case 11211:
		return "memcached"
	case 27017:
		return "mongodb"
	default:
		return ""
	}
}
