// Package definition parses network definition and network instance files.
//
// A definition file holds blocks starting with NETWORK:
//
//	NETWORK corp
//	RANGE 10.x.5.0/24
//	DOMAIN corp.lab administrator "Secret 1"
//	VAR timezone UTC
//	HOST dhcp1 services.ubuntu_dhcp 10.x.5.3
//	HOST ws1 clients.rocky8 dhcp
//	USER jdoe Passw0rd Jane Doe
//	POSTMOD ws1 post.windows.config.localadmin username=jdoe
//
// An instance file holds blocks starting with NETINSTANCE:
//
//	NETINSTANCE corp1
//	INSTOF corp
//	SWITCH vmbr10
//	OCTET x 7
//	PREFIX lab1-
//	ROUTER gw1 networking.vyos EXTERNAL=dhcp corp1=0 corp2=0
//
// Lines starting with # are comments. Tokens are separated by whitespace and
// may be quoted with single or double quotes.
package definition
