package modules

import "github.com/imamik/dropship/internal/topology"

func builtinTable() []*Descriptor {
	linuxClient := func(name, desc, image string) *Descriptor {
		return &Descriptor{
			Name: name, Description: desc, Image: image,
			Role: topology.RoleClient, ConnectionMethod: ConnectionSSH, OSType: "debian",
			BecomeMethod: "sudo", BecomeUser: "root",
		}
	}
	windowsPost := func(name, desc string, vars, files []string) *Descriptor {
		return &Descriptor{
			Name: name, Description: desc, Image: "client.windows.windows10_1909",
			Role: topology.RolePost, ConnectionMethod: ConnectionWinRM, OSType: "windows",
			RequiredVars: vars, PostFiles: files,
			BecomeMethod: "runas", BecomeUser: "adminuser",
		}
	}

	sysmon := windowsPost("post.windows.config.sysmon", "Installs Sysmon with a community configuration",
		nil, []string{"Sysmon.zip", "sysmonconfig.xml"})
	sysmon.Fetch = []FetchSpec{
		{URL: "https://download.sysinternals.com/files/Sysmon.zip", Dest: "Sysmon.zip"},
		{URL: "https://raw.githubusercontent.com/SwiftOnSecurity/sysmon-config/master/sysmonconfig-export.xml", Dest: "sysmonconfig.xml"},
	}

	return []*Descriptor{
		{
			Name: "networking.vyos", Description: "VyOS Router", Image: "linux.vyos",
			Role: topology.RoleRouter, ConnectionMethod: ConnectionNetworkCLI, OSType: "vyos",
		},
		{
			Name: "services.ubuntu_dhcp", Description: "Ubuntu DHCP server", Image: "server.linux.ubuntu_1804",
			Role: topology.RoleDHCP, ConnectionMethod: ConnectionSSH, OSType: "debian",
			BootstrapFiles: []string{"netplan.yml"}, BecomeMethod: "sudo", BecomeUser: "root",
		},
		{
			Name: "domain.ubuntu_dc_18_04", Description: "Ubuntu 18.04 Samba DC", Image: "server.linux.ubuntu_1804",
			Role: topology.RoleDomain, ConnectionMethod: ConnectionSSH, OSType: "debian",
			BootstrapFiles: []string{"netplan.yml"}, BecomeMethod: "sudo", BecomeUser: "root",
		},
		{
			Name: "domain.ubuntu_dc_20_04", Description: "Ubuntu 20.04 Samba DC (4.11+)", Image: "server.linux.ubuntu_2004",
			Role: topology.RoleDomain, ConnectionMethod: ConnectionSSH, OSType: "debian",
			BootstrapFiles: []string{"netplan.yml"}, BecomeMethod: "sudo", BecomeUser: "root",
		},
		linuxClient("clients.rocky8", "Rocky 8 Client", "client.linux.rocky8"),
		linuxClient("clients.centos7", "CentOS 7 GUI-less Client", "client.linux.centos7"),
		linuxClient("clients.xubuntu_2004", "Xubuntu 20.04 Client", "client.linux.xubuntu_2004"),
		{
			Name: "clients.windows10_1909", Description: "Windows 10 1909", Image: "client.windows.windows10_1909",
			Role: topology.RoleClient, ConnectionMethod: ConnectionWinRM, OSType: "windows",
			BecomeMethod: "runas", BecomeUser: "adminuser",
		},
		windowsPost("post.windows.config.localadmin", "Makes a user a local administrator",
			[]string{"username"}, nil),
		windowsPost("post.windows.config.rsat", "Installs RSAT for remote AD management",
			nil, []string{"rsat.msu"}),
		sysmon,
	}
}
