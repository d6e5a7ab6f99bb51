package distro

const ubuntuVersion = "22.04"

// UbuntuProvider implements Provider for Ubuntu.
type UbuntuProvider struct {
	BaseProvider
}

// NewUbuntuProvider creates a new Ubuntu provider.
func NewUbuntuProvider() *UbuntuProvider {
	return &UbuntuProvider{
		BaseProvider: BaseProvider{
			id:        Ubuntu,
			name:      "Ubuntu",
			version:   ubuntuVersion,
			archs:     []Arch{ArchAMD64},
			template:  "ubuntu-" + ubuntuVersion,
			osVariant: "ubuntu" + ubuntuVersion,
		},
	}
}

// FirstbootCommands regenerates the SSH host keys that virt-builder strips.
func (p *UbuntuProvider) FirstbootCommands() []string {
	return []string{"dpkg-reconfigure openssh-server"}
}

func init() {
	Register(NewUbuntuProvider())
}
