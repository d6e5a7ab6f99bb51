package distro

const debianVersion = "12"

// DebianProvider implements Provider for Debian.
type DebianProvider struct {
	BaseProvider
}

// NewDebianProvider creates a new Debian provider.
func NewDebianProvider() *DebianProvider {
	return &DebianProvider{
		BaseProvider: BaseProvider{
			id:        Debian,
			name:      "Debian",
			version:   debianVersion,
			archs:     []Arch{ArchAMD64, ArchARM64},
			template:  "debian-" + debianVersion,
			osVariant: "debian" + debianVersion,
		},
	}
}

// FirstbootCommands regenerates the SSH host keys that virt-builder strips.
func (p *DebianProvider) FirstbootCommands() []string {
	return []string{"dpkg-reconfigure openssh-server"}
}

func init() {
	Register(NewDebianProvider())
}
