package session

// Injected page scripts for the detached login flow. Both are idempotent:
// re-injection after a navigation is harmless.

// notificationScript renders a non-blocking banner prompting the user to log
// in. It never intercepts input to the page itself.
const notificationScript = `(() => {
	if (document.getElementById('capto-login-banner')) return;
	const banner = document.createElement('div');
	banner.id = 'capto-login-banner';
	banner.textContent = 'Please log in to this site. The download will continue automatically once you are signed in.';
	banner.style.cssText = [
		'position:fixed', 'top:0', 'left:0', 'right:0', 'z-index:2147483647',
		'background:#1a73e8', 'color:#fff', 'padding:10px 16px',
		'font:14px/1.4 sans-serif', 'text-align:center', 'pointer-events:none'
	].join(';');
	const attach = () => document.body && document.body.appendChild(banner);
	if (document.body) { attach(); } else { document.addEventListener('DOMContentLoaded', attach); }
})()`

// autoContinueScript watches for signs of an authenticated state and clicks
// a continue/proceed/download control once, so consent interstitials do not
// stall the flow.
const autoContinueScript = `(() => {
	if (window.__captoAutoContinue) return;
	window.__captoAutoContinue = true;
	const looksAuthenticated = () => {
		if (document.querySelector('a[href*="logout"], a[href*="signout"]')) return true;
		return document.cookie.split(';').some(c => {
			const [name, value] = c.trim().split('=');
			if (!value || value === 'null' || value === 'undefined') return false;
			return /session|auth|token|jwt|login/i.test(name);
		});
	};
	const clickContinue = () => {
		const candidates = Array.from(document.querySelectorAll('button, a, input[type="submit"]'));
		const target = candidates.find(el =>
			/\b(continue|proceed|download|next)\b/i.test(el.textContent || el.value || ''));
		if (target) { target.click(); return true; }
		return false;
	};
	const timer = setInterval(() => {
		if (looksAuthenticated() && clickContinue()) clearInterval(timer);
	}, 1000);
	setTimeout(() => clearInterval(timer), 5 * 60 * 1000);
})()`
