package environ

// Identity of the synthetic workstation
const (
	SyntheticUser     = "jdoe"
	SyntheticComputer = "WKS-7731"
)

const syntheticHome = `C:\Users\` + SyntheticUser

var syntheticVars = map[string]string{
	"allusersprofile":           `C:\ProgramData`,
	"appdata":                   syntheticHome + `\AppData\Roaming`,
	"cmdextversion":             "2",
	"commonprogramfiles":        `C:\Program Files\Common Files`,
	"commonprogramfiles(x86)":   `C:\Program Files (x86)\Common Files`,
	"commonprogramw6432":        `C:\Program Files\Common Files`,
	"computername":              SyntheticComputer,
	"comspec":                   `C:\WINDOWS\system32\cmd.exe`,
	"driverdata":                `C:\Windows\System32\Drivers\DriverData`,
	"errorlevel":                "0",
	"homedrive":                 "C:",
	"homepath":                  `\Users\` + SyntheticUser,
	"localappdata":              syntheticHome + `\AppData\Local`,
	"logonserver":               `\\` + SyntheticComputer,
	"number_of_processors":      "8",
	"onedrive":                  syntheticHome + `\OneDrive`,
	"os":                        "Windows_NT",
	"path":                      syntheticPath,
	"pathext":                   ".COM;.EXE;.BAT;.CMD;.VBS;.VBE;.JS;.JSE;.WSF;.WSH;.MSC",
	"processor_architecture":    "AMD64",
	"processor_identifier":      "Intel64 Family 6 Model 165 Stepping 2, GenuineIntel",
	"processor_level":           "6",
	"processor_revision":        "a502",
	"programdata":               `C:\ProgramData`,
	"programfiles":              `C:\Program Files`,
	"programfiles(x86)":         `C:\Program Files (x86)`,
	"programw6432":              `C:\Program Files`,
	"psmodulepath":              `C:\WINDOWS\system32\WindowsPowerShell\v1.0\Modules\`,
	"public":                    `C:\Users\Public`,
	"random":                    "17",
	"sessionname":               "Console",
	"systemdrive":               "C:",
	"systemroot":                `C:\WINDOWS`,
	"temp":                      syntheticHome + `\AppData\Local\Temp`,
	"tmp":                       syntheticHome + `\AppData\Local\Temp`,
	"userdomain":                SyntheticComputer,
	"userdomain_roamingprofile": SyntheticComputer,
	"username":                  SyntheticUser,
	"userprofile":               syntheticHome,
	"windir":                    `C:\WINDOWS`,
}

const syntheticPath = `C:\WINDOWS\system32;C:\WINDOWS;C:\WINDOWS\System32\Wbem;` +
	`C:\WINDOWS\System32\WindowsPowerShell\v1.0\;C:\WINDOWS\System32\OpenSSH\;` +
	`C:\Program Files\dotnet\;` + syntheticHome + `\AppData\Local\Microsoft\WindowsApps;`

// Synthetic returns a fresh copy of the synthetic workstation profile.
// The values are fixed so results are reproducible across hosts.
func Synthetic() *Env {
	return FromMap(syntheticVars)
}

// ForProfile builds the starting environment for p. host supplies the
// KEY=VALUE pairs used by ProfileHost and is ignored otherwise.
func ForProfile(p Profile, host []string) *Env {
	if p == ProfileHost {
		return FromPairs(host)
	}
	return Synthetic()
}
