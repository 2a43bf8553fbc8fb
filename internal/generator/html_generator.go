package generator

// pageTemplate is the dashboard. It is rendered on every interaction and by
// the static export, so everything it needs arrives through pageData.
const pageTemplate = `
    <!DOCTYPE html>
    <html lang="en">
    <head>
       <meta charset="UTF-8"/>
       <meta name="viewport" content="width=device-width, initial-scale=1"/>
       <title>Liberia Forest Loss Tracker</title>
       <link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css" />
       <script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
       <style>
          :root {
             --bg-color: #121212;
             --text-color: #e0e0e0;
             --card-bg: #1e1e1e;
             --card-border: #333;
             --loss-color: #ff4b4b;
             --error-bg: #3d1a1a;
             --error-border: #a52a2a;
             --summary-bg: #252525;
          }

          body {
             font-family: Arial, sans-serif;
             margin: 0;
             padding: 0 1rem;
             background-color: var(--bg-color);
             color: var(--text-color);
          }
          .layout {
             display: flex;
             gap: 1rem;
          }
          .sidebar {
             flex: 0 0 340px;
             padding: 10px 0;
          }
          .main {
             flex: 1;
             min-width: 0;
          }
          .card {
             border: 1px solid var(--card-border);
             margin-bottom: 15px;
             padding: 10px;
             border-radius: 5px;
             background-color: var(--card-bg);
          }
          .card h3 {
             margin: 0 0 8px 0;
             font-size: 0.95em;
          }
          .error {
             background-color: var(--error-bg);
             border-color: var(--error-border);
          }
          label {
             display: block;
             font-size: 0.85em;
             margin: 6px 0 2px;
             color: #aaa;
          }
          select {
             width: 100%;
             padding: 4px;
             background: var(--summary-bg);
             color: var(--text-color);
             border: 1px solid var(--card-border);
          }
          .metric-value {
             font-size: 1.8em;
             font-weight: bold;
          }
          .metric-delta {
             color: var(--loss-color);
             font-size: 0.9em;
          }
          .metric-sub {
             font-size: 0.8em;
             color: #888;
             margin-top: 4px;
          }
          .chart {
             width: 100%;
             background: #fff;
             border-radius: 3px;
          }
          #map {
             width: 100%;
             border-radius: 5px;
          }
          table.rows {
             width: 100%;
             font-size: 0.8em;
             border-collapse: collapse;
          }
          table.rows td, table.rows th {
             padding: 2px 4px;
             text-align: right;
          }
          table.rows th:first-child, table.rows td:first-child {
             text-align: left;
          }
          .footer {
             font-size: 0.8em;
             margin: 10px 0;
             color: #888;
          }
       </style>
    </head>
    <body>
    <div class="layout">
       <div class="sidebar">
          <h2>&#127794; Controls</h2>

          {{if .Error}}
          <div class="card error" id="error-banner" role="alert">
             <h3>{{if eq .Status 400}}Check your selection{{else}}Earth Engine is unavailable{{end}}</h3>
             <div>{{.Error}}</div>
             {{if .Stale}}<div class="metric-sub">Showing the last successful view.</div>{{end}}
          </div>
          {{end}}

          <form class="card" id="controls" method="get" action="/">
             <label for="county">County</label>
             <select id="county" name="county">
                {{range .Counties}}<option value="{{.}}"{{if eq . $.Selection.County}} selected{{end}}>{{.}}</option>{{end}}
             </select>
             <label for="from">From</label>
             <select id="from" name="from">
                {{range .Years}}<option value="{{.}}"{{if eq . $.Selection.From}} selected{{end}}>{{.}}</option>{{end}}
             </select>
             <label for="to">To</label>
             <select id="to" name="to">
                {{range .Years}}<option value="{{.}}"{{if eq . $.Selection.To}} selected{{end}}>{{.}}</option>{{end}}
             </select>
             <label for="metric">Chart</label>
             <select id="metric" name="metric">
                <option value="cumulative"{{if eq .Metric "cumulative"}} selected{{end}}>Cumulative loss</option>
                <option value="annual"{{if eq .Metric "annual"}} selected{{end}}>Annual loss</option>
             </select>
             <noscript><button type="submit">Update</button></noscript>
          </form>

          {{with .Latest}}
          <div class="card" id="summary">
             <h3>Cumulative Loss</h3>
             <div class="metric-value">{{thousands .CumulativeHa}} Ha</div>
             <div class="metric-delta">-{{percent .Percent}}%</div>
             <div class="metric-sub">{{.County}}, {{$.FirstYear}} to {{.Year}}. {{thousands .LossHa}} Ha lost in {{.Year}}; {{thousands .BaselineHa}} Ha of forest in {{$.BaseYear}}.</div>
          </div>
          {{end}}

          {{if .TrendChart}}
          <div class="card">
             <h3>&#128200; {{.Selection.County}} Loss Trend</h3>
             <img class="chart" src="{{.TrendChart}}" alt="Loss trend for {{.Selection.County}}"/>
          </div>
          {{end}}

          {{if .CountiesChart}}
          <div class="card">
             <h3>&#128202; Loss by County, {{.Selection.To}}</h3>
             <img class="chart" src="{{.CountiesChart}}" alt="Cumulative loss by county through {{.Selection.To}}"/>
          </div>
          {{end}}

          {{if .Rows}}
          <div class="card">
             <h3>Yearly Figures</h3>
             <table class="rows">
                <tr><th>Year</th><th>Loss (Ha)</th><th>Cumulative (Ha)</th><th>%</th></tr>
                {{range .Rows}}<tr><td>{{.Year}}</td><td>{{thousands .LossHa}}</td><td>{{thousands .CumulativeHa}}</td><td>{{percent .Percent}}</td></tr>{{end}}
             </table>
          </div>
          {{end}}
       </div>

       <div class="main">
          <h2>Liberia Forest Loss: {{.BaseYear}}&ndash;{{.Selection.To}}</h2>
          <div id="map" style="height: {{.MapHeight}}px;"></div>
          <div class="footer">
             Hansen Global Forest Change v1.12 via Google Earth Engine. Generated {{.GeneratedAt}}.
             {{if .Static}}Earth Engine overlays are only available on the live dashboard.{{end}}
          </div>
       </div>
    </div>

    <script>
       const mapData = {{toJSON .Map}};
       const selection = {{toJSON .Selection}};
       const metric = {{toJSON .Metric}};
       const isStatic = {{toJSON .Static}};
       const KEY_VIEW = 'liberia_map_view';

       const baseStyle = { color: 'white', weight: 1, fillColor: '#000000', fillOpacity: 0.01 };
       const hoverStyle = { color: 'yellow', weight: 2, fillColor: '#000000', fillOpacity: 0.01 };
       const selectedStyle = { color: '#00ffff', weight: 3, fillColor: '#000000', fillOpacity: 0.01 };

       let map;

       function formatNumber(num) {
           return (num || 0).toLocaleString('en-US', { maximumFractionDigits: 0 });
       }

       function styleFor(feature) {
           return feature.properties.selected ? selectedStyle : baseStyle;
       }

       function popupContent(props) {
           const years = selection.to - 2000;
           let html = '<div style="font-family: Arial, sans-serif; min-width: 200px;">' +
               '<h4 style="margin: 0 0 8px 0; color: #333; border-bottom: 2px solid #ff4b4b; padding-bottom: 5px;">' +
               props.name + ' County</h4>' +
               '<p style="margin: 0 0 8px 0; font-size: 11px; color: #888;">Period: 2001 &ndash; ' + selection.to + ' (' + years + ' years)</p>' +
               '<table style="width: 100%; font-size: 12px;">' +
               '<tr><td style="color: #666;">Baseline (2000):</td><td style="text-align: right; font-weight: bold;">' + formatNumber(props.baseline_ha) + ' Ha</td></tr>' +
               '<tr><td style="color: #666;">Cumulative Loss:</td><td style="text-align: right; font-weight: bold; color: #ff4b4b;">' + formatNumber(props.loss_ha) + ' Ha</td></tr>' +
               '<tr><td style="color: #666;">Loss Percentage:</td><td style="text-align: right; font-weight: bold; color: #ff4b4b;">' + (props.loss_pct || 0).toFixed(1) + '%</td></tr>' +
               '</table>';
           if (!isStatic) {
               html += '<p style="margin: 8px 0 0 0;"><a href="#" onclick="selectCounty(' + JSON.stringify(props.name).replace(/"/g, '&quot;') + '); return false;">Show trend</a></p>';
           }
           return html + '</div>';
       }

       function selectCounty(name) {
           const form = document.getElementById('controls');
           form.county.value = name;
           form.submit();
       }

       function saveView() {
           try {
               const c = map.getCenter();
               localStorage.setItem(KEY_VIEW, JSON.stringify({ lat: c.lat, lng: c.lng, zoom: map.getZoom() }));
           } catch (e) {}
       }

       function initMap() {
           map = L.map('map').setView([mapData.centerLat, mapData.centerLon], mapData.zoom);

           try {
               const saved = JSON.parse(localStorage.getItem(KEY_VIEW));
               if (saved) map.setView([saved.lat, saved.lng], saved.zoom, { animate: false });
           } catch (e) {}

           const basemaps = {};
           (mapData.basemaps || []).forEach((b, i) => {
               const layer = L.tileLayer(b.url, { attribution: b.attribution, maxZoom: b.maxZoom });
               if (i === 0) layer.addTo(map);
               basemaps[b.name] = layer;
           });

           const overlays = {};
           (mapData.layers || []).forEach(l => {
               const layer = L.tileLayer(l.tileUrl, { opacity: l.opacity, maxZoom: 22, attribution: 'Hansen/UMD/Google/USGS/NASA' });
               if (l.visible) layer.addTo(map);
               overlays['<span style="color:' + l.color + '">&#9632;</span> ' + l.name] = layer;
           });

           let selectedLayer = null;
           const counties = L.geoJSON(mapData.counties, {
               style: styleFor,
               onEachFeature: (feature, layer) => {
                   if (feature.properties.selected) selectedLayer = layer;
                   layer.on('mouseover', () => { if (layer !== selectedLayer) layer.setStyle(hoverStyle); });
                   layer.on('mouseout', () => { if (layer !== selectedLayer) layer.setStyle(baseStyle); });
                   layer.on('click', e => {
                       if (selectedLayer && selectedLayer !== layer) selectedLayer.setStyle(baseStyle);
                       layer.setStyle(selectedStyle);
                       selectedLayer = layer;
                       layer.bindPopup(popupContent(feature.properties), { maxWidth: 250, autoPan: false }).openPopup();
                       L.DomEvent.stopPropagation(e);
                   });
               }
           }).addTo(map);
           overlays['Counties'] = counties;

           map.on('click', () => {
               if (selectedLayer && !selectedLayer.feature.properties.selected) {
                   selectedLayer.setStyle(baseStyle);
                   selectedLayer.closePopup();
                   selectedLayer = null;
               }
           });

           L.control.layers(basemaps, overlays, { collapsed: false }).addTo(map);
           map.on('moveend', saveView);
           map.on('zoomend', saveView);
       }

       document.querySelectorAll('#controls select').forEach(s => {
           s.addEventListener('change', () => {
               const form = document.getElementById('controls');
               if (s.name === 'from' && +form.from.value > +form.to.value) form.to.value = form.from.value;
               if (s.name === 'to' && +form.to.value < +form.from.value) form.from.value = form.to.value;
               form.submit();
           });
       });

       if (isStatic) {
           document.getElementById('controls').style.display = 'none';
       }

       initMap();
    </script>
    </body>
    </html>
`
