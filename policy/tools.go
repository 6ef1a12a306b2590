package policy

// Default tool allowlist, grouped by assessment phase. Commands outside
// these sets do not run: agents drive real security tooling against real
// targets, so the gate is allow-by-list rather than deny-by-list.
var DefaultCategories = map[string][]string{
	"network_recon": {
		"nmap", "masscan", "rustscan", "ping", "traceroute",
		"dig", "host", "whois", "dnsrecon", "dnsenum", "fierce",
	},
	"web_scanning": {
		"nikto", "whatweb", "gobuster", "dirb", "dirsearch",
		"wfuzz", "ffuf", "wpscan", "httpx", "curl", "wget",
	},
	"vuln_scanning": {
		"nuclei", "sqlmap", "searchsploit",
	},
	"enumeration": {
		"enum4linux", "smbclient", "smbmap", "rpcclient",
		"snmpwalk", "ldapsearch", "nbtscan", "onesixtyone", "showmount",
	},
	"exploitation": {
		"hydra", "medusa", "ncrack", "john", "hashcat", "msfvenom",
	},
	"utilities": {
		"grep", "awk", "sed", "cat", "echo", "cut", "sort", "uniq",
		"head", "tail", "wc", "tee", "jq", "base64", "xxd", "strings",
		"file", "openssl", "nc", "ncat", "tcpdump", "tshark",
		"python3", "python", "bash", "sh", "sleep",
	},
}

// Categories returns the category names in the default allowlist.
func Categories() []string {
	names := make([]string, 0, len(DefaultCategories))
	for name := range DefaultCategories {
		names = append(names, name)
	}
	return names
}
