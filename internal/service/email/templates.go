package email

// Operator alert templates. Every alert goes to the ops inbox, so the
// bodies lead with the identifiers a field tech needs.

const connectorFaultedTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: linear-gradient(135deg, #dc2626, #b91c1c); color: white; padding: 30px; text-align: center; border-radius: 10px 10px 0 0; }
        .header h1 { margin: 0; font-size: 24px; }
        .content { background: #ffffff; padding: 30px; border: 1px solid #e5e7eb; border-top: none; }
        .footer { background: #f9fafb; padding: 20px; text-align: center; font-size: 12px; color: #6b7280; border: 1px solid #e5e7eb; border-top: none; border-radius: 0 0 10px 10px; }
        .info-box { background: #fee2e2; border: 1px solid #dc2626; padding: 20px; border-radius: 8px; margin: 20px 0; }
        .info-row { display: flex; justify-content: space-between; padding: 8px 0; border-bottom: 1px solid #fecaca; }
        .info-row:last-child { border-bottom: none; }
        .info-label { color: #991b1b; }
        .info-value { font-weight: 600; color: #7f1d1d; }
        .button { display: inline-block; background: #2563eb; color: white; padding: 12px 30px; text-decoration: none; border-radius: 6px; margin: 20px 0; }
    </style>
</head>
<body>
    <div class="header">
        <h1>OCPP Central</h1>
        <p style="margin: 5px 0 0 0; opacity: 0.9;">Connector Fault</p>
    </div>
    <div class="content">
        <h2>Connector Reported Faulted</h2>
        <p>A charge point reported a faulted connector. The connector stays out of service until the fault clears.</p>

        <div class="info-box">
            <div class="info-row">
                <span class="info-label">Charge Point</span>
                <span class="info-value">{{.ChargePointID}}</span>
            </div>
            <div class="info-row">
                <span class="info-label">Connector</span>
                <span class="info-value">{{.Connector}}</span>
            </div>
            <div class="info-row">
                <span class="info-label">Error Code</span>
                <span class="info-value">{{.ErrorCode}}</span>
            </div>
            <div class="info-row">
                <span class="info-label">Reported At</span>
                <span class="info-value">{{.Time}}</span>
            </div>
        </div>

        <p style="text-align: center;">
            <a href="{{.BaseURL}}/api/v1/status" class="button">Open Station Status</a>
        </p>
    </div>
    <div class="footer">
        <p>This is an automated alert from OCPP Central. Please do not reply to this email.</p>
    </div>
</body>
</html>
`

const lowBalanceTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: linear-gradient(135deg, #f59e0b, #d97706); color: white; padding: 30px; text-align: center; border-radius: 10px 10px 0 0; }
        .header h1 { margin: 0; font-size: 24px; }
        .content { background: #ffffff; padding: 30px; border: 1px solid #e5e7eb; border-top: none; }
        .footer { background: #f9fafb; padding: 20px; text-align: center; font-size: 12px; color: #6b7280; border: 1px solid #e5e7eb; border-top: none; border-radius: 0 0 10px 10px; }
        .warning-box { background: #fef3c7; border: 2px solid #f59e0b; padding: 20px; border-radius: 8px; margin: 20px 0; text-align: center; }
        .balance { font-size: 32px; font-weight: bold; color: #d97706; }
    </style>
</head>
<body>
    <div class="header">
        <h1>OCPP Central</h1>
        <p style="margin: 5px 0 0 0; opacity: 0.9;">Low Wallet Balance</p>
    </div>
    <div class="content">
        <h2>Wallet Running Low</h2>
        <p>The prepaid wallet for vehicle <strong>{{.VID}}</strong> dropped under the low water mark at {{.Time}}. Sessions for this vehicle will be cut off when the balance reaches zero.</p>

        <div class="warning-box">
            <p style="margin: 0 0 10px 0; color: #92400e;">Current Balance</p>
            <div class="balance">{{.Currency}} {{.Balance}}</div>
        </div>
    </div>
    <div class="footer">
        <p>This is an automated alert from OCPP Central. Please do not reply to this email.</p>
    </div>
</body>
</html>
`

const zeroCreditCutoffTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: linear-gradient(135deg, #dc2626, #b91c1c); color: white; padding: 30px; text-align: center; border-radius: 10px 10px 0 0; }
        .header h1 { margin: 0; font-size: 24px; }
        .content { background: #ffffff; padding: 30px; border: 1px solid #e5e7eb; border-top: none; }
        .footer { background: #f9fafb; padding: 20px; text-align: center; font-size: 12px; color: #6b7280; border: 1px solid #e5e7eb; border-top: none; border-radius: 0 0 10px 10px; }
        .info-box { background: #f3f4f6; padding: 20px; border-radius: 8px; margin: 20px 0; }
        .info-row { display: flex; justify-content: space-between; padding: 8px 0; border-bottom: 1px solid #e5e7eb; }
        .info-row:last-child { border-bottom: none; }
        .info-label { color: #6b7280; }
        .info-value { font-weight: 600; }
    </style>
</head>
<body>
    <div class="header">
        <h1>OCPP Central</h1>
        <p style="margin: 5px 0 0 0; opacity: 0.9;">Zero Credit Cutoff</p>
    </div>
    <div class="content">
        <h2>Session Stopped on Zero Credit</h2>
        <p>A running charging session was remotely stopped because the vehicle wallet reached zero.</p>

        <div class="info-box">
            <div class="info-row">
                <span class="info-label">Vehicle</span>
                <span class="info-value">{{.VID}}</span>
            </div>
            <div class="info-row">
                <span class="info-label">Transaction ID</span>
                <span class="info-value">{{.TransactionID}}</span>
            </div>
            <div class="info-row">
                <span class="info-label">Stopped At</span>
                <span class="info-value">{{.Time}}</span>
            </div>
        </div>

        <p>The vehicle cannot start a new session until the wallet is topped up.</p>
    </div>
    <div class="footer">
        <p>This is an automated alert from OCPP Central. Please do not reply to this email.</p>
    </div>
</body>
</html>
`
