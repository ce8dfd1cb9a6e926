package artifacts

import (
	"fmt"
	"path"

	"github.com/pelletier/go-toml/v2"
)

// DefaultWallpaper ships with the archlinux-wallpaper package.
const DefaultWallpaper = "/usr/share/backgrounds/archlinux/simple.png"

type greetdConfig struct {
	Terminal       greetdTerminal `toml:"terminal"`
	DefaultSession greetdSession  `toml:"default_session"`
}

type greetdTerminal struct {
	VT int `toml:"vt"`
}

type greetdSession struct {
	Command string `toml:"command"`
	User    string `toml:"user"`
}

// GreetdConfig renders /etc/greetd/config.toml with tuigreet starting Hyprland.
func GreetdConfig(v Values) (File, error) {
	cfg := greetdConfig{
		Terminal: greetdTerminal{VT: 1},
		DefaultSession: greetdSession{
			Command: "tuigreet --time --remember --asterisks --cmd Hyprland",
			User:    "greeter",
		},
	}
	b, err := toml.Marshal(cfg)
	if err != nil {
		return File{}, fmt.Errorf("failed to render greetd config: %w", err)
	}
	return File{Path: "etc/greetd/config.toml", Mode: 0644, Content: string(b)}, nil
}

const hyprlandTmpl = `# Generated by archsetup.
monitor = , preferred, auto, 1

exec-once = waybar
exec-once = hyprpaper

input {
    kb_layout = [[ xkb .Keymap ]]
    follow_mouse = 1
    touchpad {
        natural_scroll = true
    }
}

general {
    gaps_in = 4
    gaps_out = 8
    border_size = 2
    layout = dwindle
}

$mod = SUPER
bind = $mod, Return, exec, kitty
bind = $mod, D, exec, wofi --show drun
bind = $mod, Q, killactive
bind = $mod SHIFT, E, exit
`

const waybarTmpl = `{
    "layer": "top",
    "position": "top",
    "modules-left": ["hyprland/workspaces"],
    "modules-center": ["clock"],
    "modules-right": ["network", "pulseaudio", "battery", "tray"],
    "clock": { "format": "{:%a %d %b  %H:%M}" },
    "network": { "format-wifi": "{essid}", "format-ethernet": "wired", "format-disconnected": "offline" },
    "battery": { "format": "{capacity}%" }
}
`

const hyprpaperTmpl = `preload = [[ .WallpaperPath ]]
wallpaper = , [[ .WallpaperPath ]]
splash = false
`

// HomeDir is the user's home directory relative to the target root.
func HomeDir(username string) string {
	return path.Join("home", username)
}

// HyprlandConf renders the Hyprland configuration.
func HyprlandConf(v Values) (File, error) {
	return render(path.Join(HomeDir(v.Username), ".config/hypr/hyprland.conf"), 0644, hyprlandTmpl, v)
}

// WaybarConfig renders the Waybar module layout.
func WaybarConfig(v Values) (File, error) {
	return render(path.Join(HomeDir(v.Username), ".config/waybar/config"), 0644, waybarTmpl, v)
}

// HyprpaperConf renders the wallpaper configuration. An empty WallpaperPath
// falls back to DefaultWallpaper.
func HyprpaperConf(v Values) (File, error) {
	if v.WallpaperPath == "" {
		v.WallpaperPath = DefaultWallpaper
	}
	return render(path.Join(HomeDir(v.Username), ".config/hypr/hyprpaper.conf"), 0644, hyprpaperTmpl, v)
}

// DesktopFiles renders every per-user desktop file.
func DesktopFiles(v Values) ([]File, error) {
	var files []File
	for _, fn := range []func(Values) (File, error){HyprlandConf, WaybarConfig, HyprpaperConf} {
		f, err := fn(v)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}
