package reports

import (
	"html/template"
	"net/http"

	"github.com/noah-isme/backend-komisi/internal/spreadsheet"
)

var formTemplate = template.Must(template.New("form").Parse(`<!DOCTYPE html>
<html lang="zh-Hant">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 42rem; margin: 2rem auto; }
table { border-collapse: collapse; margin: 1rem 0; }
th, td { border: 1px solid #999; padding: .25rem .6rem; }
label { display: block; margin: .8rem 0 .3rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>上傳銷售明細（.xlsx 或以 Tab、逗號分隔的 .txt），系統依每月累計銷售比例計算各筆抽成並產生報表下載。</p>
<p><strong>欄位格式範例：</strong></p>
<table>
<tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr>
{{range .Examples}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
<form method="post" action="{{.Action}}" enctype="multipart/form-data">
<label for="file">銷售資料檔</label>
<input id="file" type="file" name="file" accept=".xlsx,.txt,.csv,.tsv" required>
<label for="output_name">輸出檔案名稱</label>
<input id="output_name" type="text" name="output_name" value="{{.DefaultName}}" maxlength="128">
<p><button type="submit">計算並下載</button></p>
</form>
</body>
</html>
`))

type formView struct {
	Title       string
	Action      string
	Columns     []string
	Examples    [][]string
	DefaultName string
}

var exampleLedger = [][]string{
	{"320408", "2025/7/1", "50", "990"},
	{"320408", "2025/7/2", "60", "11000"},
	{"320408", "2025/7/2", "70", "21010"},
	{"320408", "2025/7/3", "50", "31020"},
	{"320408", "2025/7/3", "80", "41030"},
	{"320408", "2025/7/4", "50", "51040"},
}

func renderForm(w http.ResponseWriter, labels spreadsheet.Labels, action string) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return formTemplate.Execute(w, formView{
		Title:       "抽成計算工具",
		Action:      action,
		Columns:     labels.Headers[:4],
		Examples:    exampleLedger,
		DefaultName: labels.DefaultName,
	})
}
