package artifacts

const localeConfTmpl = `LANG=[[ .Locale ]]
`

const vconsoleTmpl = `KEYMAP=[[ .Keymap ]]
`

const hostnameTmpl = `[[ .Hostname ]]
`

const hostsTmpl = `127.0.0.1   localhost
::1         localhost
127.0.1.1   [[ .Hostname ]].localdomain [[ .Hostname ]]
`

const sudoersTmpl = `%wheel ALL=(ALL:ALL) ALL
`

const loaderConfTmpl = `default arch.conf
timeout 3
console-mode max
editor no
`

const archEntryTmpl = `title   Arch Linux
linux   /vmlinuz-linux
initrd  /initramfs-linux.img
options root=UUID=[[ .RootUUID ]] rw[[ if .Btrfs ]] rootflags=subvol=@[[ end ]]
`

const networkManagerTmpl = `[device]
wifi.backend=iwd
`

const zramTmpl = `[zram0]
zram-size = min(ram / 2, 8192)
compression-algorithm = zstd
swap-priority = 100
`

// ufw reads its policies from here; the service itself stays disabled.
const ufwTmpl = `IPV6=yes
DEFAULT_INPUT_POLICY="DROP"
DEFAULT_OUTPUT_POLICY="ACCEPT"
DEFAULT_FORWARD_POLICY="DROP"
DEFAULT_APPLICATION_POLICY="SKIP"
MANAGE_BUILTINS=no
IPT_SYSCTL=/etc/ufw/sysctl.conf
IPT_MODULES=""
`

// LocaleConf renders /etc/locale.conf.
func LocaleConf(v Values) (File, error) {
	return render("etc/locale.conf", 0644, localeConfTmpl, v)
}

// VconsoleConf renders /etc/vconsole.conf.
func VconsoleConf(v Values) (File, error) {
	return render("etc/vconsole.conf", 0644, vconsoleTmpl, v)
}

// Hostname renders /etc/hostname.
func Hostname(v Values) (File, error) {
	return render("etc/hostname", 0644, hostnameTmpl, v)
}

// Hosts renders /etc/hosts.
func Hosts(v Values) (File, error) {
	return render("etc/hosts", 0644, hostsTmpl, v)
}

// Sudoers renders the wheel drop-in with mode 0440.
func Sudoers(v Values) (File, error) {
	return render("etc/sudoers.d/10-wheel", 0440, sudoersTmpl, v)
}

// LoaderConf renders the systemd-boot loader configuration.
func LoaderConf(v Values) (File, error) {
	return render("boot/loader/loader.conf", 0644, loaderConfTmpl, v)
}

// ArchEntry renders the systemd-boot entry for the installed kernel.
func ArchEntry(v Values) (File, error) {
	return render("boot/loader/entries/arch.conf", 0644, archEntryTmpl, v)
}

// NetworkManagerIwd selects iwd as NetworkManager's Wi-Fi backend.
func NetworkManagerIwd(v Values) (File, error) {
	return render("etc/NetworkManager/conf.d/wifi_backend.conf", 0644, networkManagerTmpl, v)
}

// ZramGenerator renders the zram swap configuration.
func ZramGenerator(v Values) (File, error) {
	return render("etc/systemd/zram-generator.conf", 0644, zramTmpl, v)
}

// UFWDefaults renders the firewall default policies.
func UFWDefaults(v Values) (File, error) {
	return render("etc/default/ufw", 0644, ufwTmpl, v)
}
