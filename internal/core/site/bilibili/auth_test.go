package bilibili

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth_QRFlow(t *testing.T) {
	api := newFakeAPI(t)
	api.on("/x/passport-login/web/qrcode/generate",
		`{"code":0,"data":{"url":"https://account.bilibili.com/h5/account-h5/auth/scan-web?qrcode_key=k1","qrcode_key":"k1"}}`)
	api.on("/x/passport-login/web/qrcode/poll",
		`{"code":0,"data":{"url":"","code":86101,"message":"未扫码"}}`,
		`{"code":0,"data":{"url":"https://passport.biligame.com/crossDomain?DedeUserID=42&SESSDATA=abc%2C123&bili_jct=jct","code":0,"message":""}}`)
	auth := NewAuth(api.client())

	sess, err := auth.GenerateQRCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k1", sess.QRCodeKey)

	status, creds, err := auth.PollQRStatus(context.Background(), sess.QRCodeKey)
	require.NoError(t, err)
	assert.Equal(t, QRWaiting, status)
	assert.Nil(t, creds)

	status, creds, err = auth.PollQRStatus(context.Background(), sess.QRCodeKey)
	require.NoError(t, err)
	assert.Equal(t, QRConfirmed, status)
	require.NotNil(t, creds)
	assert.Equal(t, "abc,123", creds.SESSDATA)
	assert.Equal(t, "jct", creds.BiliJCT)
	assert.Equal(t, "42", creds.DedeUserID)

	assert.Equal(t, "k1", api.requestsTo("/x/passport-login/web/qrcode/poll")[0].URL.Query().Get("qrcode_key"))
}

func TestAuth_ValidateCredentials(t *testing.T) {
	api := newFakeAPI(t)
	api.on("/x/web-interface/nav", `{"code":0,"data":{"isLogin":true,"uname":"tester","mid":42,"vip":{"status":1}}}`)

	info, err := NewAuth(api.client(WithCookie("SESSDATA=abc"))).ValidateCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tester", info.UName)
	assert.Equal(t, int64(42), info.Mid)
	assert.Equal(t, 1, info.VIPLevel)
	assert.Equal(t, "SESSDATA=abc", api.requestsTo("/x/web-interface/nav")[0].Header.Get("Cookie"))
}

func TestAuth_ValidateCredentials_LoggedOut(t *testing.T) {
	api := newFakeAPI(t)
	api.on("/x/web-interface/nav", navBody)

	_, err := NewAuth(api.client()).ValidateCredentials(context.Background())
	assert.Error(t, err)
}

func TestCookieStrings(t *testing.T) {
	creds := ParseCookieString("SESSDATA=a; bili_jct=b; DedeUserID=c; other=x")
	assert.Equal(t, &Credentials{SESSDATA: "a", BiliJCT: "b", DedeUserID: "c"}, creds)
	assert.Equal(t, "SESSDATA=a; bili_jct=b; DedeUserID=c", creds.ToCookieString())

	assert.Equal(t, "a", ParseCookieString("a").SESSDATA)
	assert.Equal(t, "SESSDATA=only", (&Credentials{SESSDATA: "only"}).ToCookieString())
}

func TestQRStatus_String(t *testing.T) {
	assert.Equal(t, "QR code expired", QRExpired.String())
	assert.Equal(t, "unknown status: 7", QRStatus(7).String())
}
