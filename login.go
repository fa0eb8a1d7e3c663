package oauth

import "html/template"

// loginTemplate is the default login and consent page. It shows the client
// and the requested scopes and posts the authorization request back as
// hidden fields together with the player's name and password.
//
// SECURITY: the page has no script and is served with a CSP that blocks
// scripts entirely (security.SetLoginPageHeaders).
const loginTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Sign in to {{.ClientName}}</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: linear-gradient(135deg, #1a1a2e 0%, #16213e 50%, #0f3460 100%);
            min-height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
            color: #fff;
        }
        .container {
            padding: 2rem;
            width: 100%;
            max-width: 400px;
        }
        h1 {
            font-size: 1.5rem;
            margin-bottom: 0.75rem;
        }
        p {
            color: rgba(255, 255, 255, 0.8);
            margin-bottom: 1rem;
        }
        ul {
            margin: 0 0 1.5rem 1.25rem;
            color: rgba(255, 255, 255, 0.8);
        }
        label {
            display: block;
            font-size: 0.9rem;
            margin-bottom: 0.25rem;
        }
        input[type=text], input[type=password] {
            width: 100%;
            padding: 0.6rem;
            margin-bottom: 1rem;
            border: 1px solid rgba(255, 255, 255, 0.3);
            border-radius: 6px;
            background: rgba(255, 255, 255, 0.05);
            color: #fff;
        }
        button {
            width: 100%;
            padding: 0.75rem;
            border: none;
            border-radius: 6px;
            background: #00d26a;
            color: #1a1a2e;
            font-weight: 600;
            cursor: pointer;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>Sign in to {{.ClientName}}</h1>
        <p>{{.ClientName}} is requesting access to:</p>
        <ul>
            {{range .Scopes}}<li>{{.}}</li>{{end}}
        </ul>
        <form method="post" action="{{.Action}}">
            <input type="hidden" name="response_type" value="{{.ResponseType}}">
            <input type="hidden" name="client_id" value="{{.ClientID}}">
            <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
            <input type="hidden" name="scope" value="{{.Scope}}">
            <input type="hidden" name="state" value="{{.State}}">
            <input type="hidden" name="code_challenge" value="{{.CodeChallenge}}">
            <input type="hidden" name="code_challenge_method" value="{{.CodeChallengeMethod}}">
            {{if .Nonce}}<input type="hidden" name="nonce" value="{{.Nonce}}">{{end}}
            <label for="username">Player name</label>
            <input type="text" id="username" name="username" autocomplete="username" required autofocus>
            <label for="password">Password</label>
            <input type="password" id="password" name="password" autocomplete="current-password" required>
            <button type="submit">Sign in</button>
        </form>
    </div>
</body>
</html>`

var defaultLoginTemplate = template.Must(template.New("login").Parse(loginTemplate))
