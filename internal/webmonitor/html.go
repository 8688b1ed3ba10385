package webmonitor

const indexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Loot Tracker</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        :root { --bg:#14161a; --panel:#1e2127; --fg:#e6e6e6; --muted:#8a8f98; --ok:#00dc5a; --warn:#ffc800; }
        body { margin:0; font-family:system-ui,sans-serif; background:var(--bg); color:var(--fg); }
        .app { max-width:1100px; margin:0 auto; padding:16px; }
        .header { display:flex; justify-content:space-between; align-items:center; }
        .grid { display:grid; grid-template-columns:2fr 1fr; gap:16px; margin-top:16px; }
        .panel { background:var(--panel); border-radius:8px; padding:12px; }
        table { width:100%; border-collapse:collapse; }
        td, th { padding:4px 6px; text-align:left; border-bottom:1px solid #2c3038; }
        td.qty { text-align:right; font-variant-numeric:tabular-nums; }
        img.icon { width:32px; height:24px; image-rendering:pixelated; }
        .badge { padding:2px 8px; border-radius:10px; background:#333; }
        .badge.running { background:var(--ok); color:#000; }
        .badge.paused { background:var(--warn); color:#000; }
        .slots { display:grid; grid-template-columns:repeat(4, 1fr); gap:4px; }
        .slot { font-size:11px; padding:4px; border-radius:4px; background:#2a2d33; }
        .slot.confirmed { outline:1px solid var(--ok); }
        .slot.pending { outline:1px solid var(--warn); }
        button { margin-right:4px; }
        #overlay { max-width:100%; margin-top:8px; }
    </style>
</head>
<body>
<div class="app">
    <div class="header">
        <h1>Loot Tracker</h1>
        <span class="badge" id="run-state">idle</span>
    </div>
    <div>
        <input id="label" placeholder="Run label">
        <button data-run="start">Start</button>
        <button data-run="toggle">Pause / Resume</button>
        <button data-run="stop">Stop</button>
        <button data-run="reset">Reset</button>
        <button id="clear">Clear history</button>
        <button id="rec">Record</button>
    </div>
    <div class="grid">
        <div class="panel">
            <h2>Loot <small id="total"></small></h2>
            <table>
                <thead><tr><th></th><th>Item</th><th>Qty</th></tr></thead>
                <tbody id="loot"></tbody>
            </table>
            <h2>Sessions</h2>
            <table>
                <thead><tr><th>Label</th><th>Started</th><th>Items</th></tr></thead>
                <tbody id="sessions"></tbody>
            </table>
        </div>
        <div class="panel">
            <h2>Slots</h2>
            <div class="slots" id="slots"></div>
            <img id="overlay" alt="">
        </div>
    </div>
</div>
<script>
const $ = (id) => document.getElementById(id);
const post = (url, body) => fetch(url, {method:'POST', headers:{'Content-Type':'application/json'}, body: body ? JSON.stringify(body) : undefined});

document.querySelectorAll('[data-run]').forEach((b) => b.onclick = () => {
    const action = b.dataset.run;
    post('/api/run/' + action, action === 'start' ? {label: $('label').value} : null).then(loadSessions);
});
$('clear').onclick = () => { if (confirm('Delete all sessions and names?')) post('/api/clear').then(loadSessions); };
let recording = false;
$('rec').onclick = () => post('/api/recording/' + (recording ? 'stop' : 'start'));

function rename(sig, current) {
    const name = prompt('Name for ' + sig, current);
    if (name === null) return;
    fetch('/api/icons/' + sig + '/name', {method:'PUT', headers:{'Content-Type':'application/json'}, body: JSON.stringify({name})});
}

function render(s) {
    const st = s.tracker;
    $('run-state').textContent = st.run_state;
    $('run-state').className = 'badge ' + st.run_state;
    $('total').textContent = (st.item_total ? st.item_total + ' items' : '') + (st.coins ? ' ' + st.coins + ' gp' : '');
    recording = !!(s.recording && s.recording.recording);
    $('rec').textContent = recording ? 'Stop recording' : 'Record';

    $('loot').innerHTML = '';
    for (const e of s.loot || []) {
        const tr = document.createElement('tr');
        const icon = e.iconSig ? '<img class="icon" src="/api/icons/' + e.iconSig + '.png">' : '';
        tr.innerHTML = '<td>' + icon + '</td><td></td><td class="qty">' + e.qty + '</td>';
        tr.children[1].textContent = e.name;
        if (e.iconSig) tr.children[1].ondblclick = () => rename(e.iconSig, e.name);
        $('loot').appendChild(tr);
    }

    $('slots').innerHTML = '';
    for (const sl of s.slots || []) {
        const d = document.createElement('div');
        d.className = 'slot ' + sl.state;
        d.textContent = sl.index + ': ' + (sl.signature ? sl.signature.slice(0, 6) : sl.state) + (sl.qty_known ? ' x' + sl.qty : '');
        $('slots').appendChild(d);
    }
    if (st.last_frame_num) $('overlay').src = '/api/debug/overlay.jpg?f=' + st.last_frame_num;
}

function loadSessions() {
    fetch('/api/sessions').then((r) => r.json()).then((d) => {
        $('sessions').innerHTML = '';
        for (const s of d.sessions || []) {
            const tr = document.createElement('tr');
            tr.innerHTML = '<td></td><td>' + new Date(s.startedAt).toLocaleString() + '</td><td>' + (s.loot || []).length + '</td>';
            tr.children[0].textContent = s.label;
            $('sessions').appendChild(tr);
        }
    });
}

const es = new EventSource('/api/status/stream');
es.onmessage = (ev) => render(JSON.parse(ev.data));
loadSessions();
</script>
</body>
</html>
`
