package web

import (
	"html/template"
	"io"
	"time"

	"github.com/sweeney/heater-control/internal/state"
	"github.com/sweeney/heater-control/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Heater Control</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Heater Control</h1>

<h2>Control</h2>
<table>
<tr><th>Enabled</th><td id="enabled" class="{{if .Control.Enabled}}on{{else}}off{{end}}">{{if .Control.Enabled}}yes{{else}}no{{end}}</td></tr>
<tr><th>Loop</th><td id="loop">{{.Loop}}</td></tr>
<tr><th>Mode</th><td id="mode">{{.Control.Mode}}</td></tr>
<tr><th>Frequency</th><td>{{.Control.Frequency}} Hz</td></tr>
<tr><th>Gains</th><td>Kp {{.Control.Gains.Kp}} / Ki {{.Control.Gains.Ki}} / Kd {{.Control.Gains.Kd}}</td></tr>
</table>

<h2>Channels</h2>
<table>
<tr><th>Channel</th><td>Setpoint</td><td>Temperature</td><td>Output</td></tr>
{{range $i, $sp := .Control.Setpoints}}<tr><th>{{inc $i}}</th><td>{{$sp}}</td><td>{{if $.LastFrame}}{{index $.LastFrame.Temperatures $i}}{{else}}-{{end}}</td><td>{{index $.Control.LastCommand $i}}</td></tr>
{{end}}</table>

<h2>Activity</h2>
<table>
<tr><th>Frames</th><td>{{.Counts.Frames}}</td></tr>
<tr><th>Malformed</th><td>{{.Counts.Malformed}}</td></tr>
<tr><th>Commands</th><td>{{.Counts.Cycles}}</td></tr>
{{if .LastFrame}}<tr><th>Last counter</th><td>{{.LastFrame.Counter}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}none{{end}}</td></tr>
<tr><th>Input</th><td>{{.Config.Input}}</td></tr>
<tr><th>Output</th><td>{{.Config.Output}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{.Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
</table>

<p><a href="/status.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, ctl state.Snapshot) error {
	data := struct {
		status.Snapshot
		Control state.Snapshot
		Uptime  string
	}{
		Snapshot: snap,
		Control:  ctl,
		Uptime:   snap.Uptime().Round(time.Second).String(),
	}
	return indexTmpl.Execute(w, data)
}
