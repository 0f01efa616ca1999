package handler

import "net/http"

const notFoundPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Tag not found</title>
<style>body{font-family:system-ui,sans-serif;max-width:32rem;margin:4rem auto;padding:0 1rem;color:#222;text-align:center}h1{font-size:1.5rem}</style>
</head>
<body>
<h1>Tag not found</h1>
<p>This NFC tag is not registered or is no longer active.</p>
</body>
</html>
`

const serverErrorPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Something went wrong</title>
<style>body{font-family:system-ui,sans-serif;max-width:32rem;margin:4rem auto;padding:0 1rem;color:#222;text-align:center}h1{font-size:1.5rem}</style>
</head>
<body>
<h1>Something went wrong</h1>
<p>We could not open this tag right now. Please scan it again in a moment.</p>
</body>
</html>
`

func renderPage(w http.ResponseWriter, status int, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(page))
}
